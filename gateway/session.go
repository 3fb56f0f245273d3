package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session is a single-invocation handle on the gateway.
type Session struct {
	cs          *mcp.ClientSession
	transport   *bearerTransport
	connectedIn time.Duration
	closed      atomic.Bool
}

// ConnectionTime returns how long opening the session took.
func (s *Session) ConnectionTime() time.Duration {
	return s.connectedIn
}

// Closed returns true after Close.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close closes the session. It is safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.cs.Close()
}

// ListTools returns every tool advertised by the gateway.
func (s *Session) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	if s.Closed() {
		return nil, errors.New("gateway: session is closed")
	}

	var list []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := s.cs.ListTools(ctx, params)
		if err != nil {
			err = errors.Mark(errors.Wrap(err, "unable to list tools"), ErrGatewayUnreachable)
			if s.transport.rejected.Load() {
				err = errors.Mark(err, ErrTokenRejected)
			}
			return nil, err
		}
		list = append(list, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}

	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name)
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "tools_discovered",
		"count", len(list),
		"tools", strings.Join(names, ","),
	)
	return list, nil
}

// Dispatch calls the tool with JSON arguments and returns its text output.
func (s *Session) Dispatch(ctx context.Context, name, arguments string) (string, error) {
	if s.Closed() {
		return "", errors.Mark(errors.Newf("tool %s: session is closed", name), ErrToolDispatch)
	}

	var args any = map[string]any{}
	if strings.TrimSpace(arguments) != "" {
		if !json.Valid([]byte(arguments)) {
			return "", errors.Mark(errors.Newf("tool %s: arguments are not valid JSON", name), ErrToolDispatch)
		}
		args = json.RawMessage(arguments)
	}

	started := time.Now()
	defer metricskey.PerfToolDispatch.MeasureSince(started, name)

	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "tool %s", name), ErrToolDispatch)
	}

	text, err := contentText(res)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "tool %s", name), ErrToolDispatch)
	}
	if res.IsError {
		return "", errors.Mark(errors.Newf("tool %s: %s", name, text), ErrToolDispatch)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_dispatched",
		"tool", name,
		"args", slices.StringUpto(arguments, 256),
		"output_length", len(text),
	)
	return text, nil
}

// contentText joins text content; other content is returned as JSON.
func contentText(res *mcp.CallToolResult) (string, error) {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		js, err := json.Marshal(c)
		if err != nil {
			return "", errors.WithStack(err)
		}
		parts = append(parts, string(js))
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		js, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return "", errors.WithStack(err)
		}
		parts = append(parts, string(js))
	}
	return strings.Join(parts, "\n"), nil
}
