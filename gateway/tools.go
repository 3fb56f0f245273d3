package gateway

import (
	"context"

	"github.com/effective-security/agentgate/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tools adapts the tool descriptors of a session for the agent.
// The returned tools are valid only while the session is open.
func Tools(s *Session, descriptors []*mcp.Tool) []tools.ITool {
	list := make([]tools.ITool, 0, len(descriptors))
	for _, d := range descriptors {
		list = append(list, &remoteTool{session: s, desc: d})
	}
	return list
}

type remoteTool struct {
	session *Session
	desc    *mcp.Tool
}

func (t *remoteTool) Name() string {
	return t.desc.Name
}

func (t *remoteTool) Description() string {
	return t.desc.Description
}

func (t *remoteTool) Parameters() any {
	return t.desc.InputSchema
}

func (t *remoteTool) Call(ctx context.Context, input string) (string, error) {
	return t.session.Dispatch(ctx, t.desc.Name, input)
}
