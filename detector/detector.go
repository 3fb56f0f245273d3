// Package detector decides after the fact whether the model used remote
// tools during a turn. The result is a best-effort diagnostic.
package detector

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/pkg/llms"
	"github.com/effective-security/agentgate/pkg/llmutils"
)

// MaxLoggedQueries is the number of queries kept in Result.Queries.
const MaxLoggedQueries = 5

// ResponseToolName is reported when usage was inferred from the response text.
const ResponseToolName = "countries-graphql-target (detected from response)"

var (
	transcriptMarkers = []string{"tool", "function_call", "tool_call", "mcp"}
	responseMarkers   = []string{`{"code"`, `"name"`, `"capital"`, `"currency"`, "graphql"}
)

// Result of the detection
type Result struct {
	Used bool
	// CallCount is the number of transcript entries added by the turn
	CallCount int
	// Queries are the distinct GraphQL queries seen, at most MaxLoggedQueries
	Queries []string
	// Tools are the distinct tool names called
	Tools []string
}

// Detect compares transcript snapshots taken before and after the model call.
// A panic while inspecting the transcript is returned as an error, and the
// caller should fall back to DetectFromResponse.
func Detect(before, after []llms.Message) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = errors.Newf("unable to inspect transcript: %v", r)
		}
	}()

	if len(after) < len(before) {
		return Result{}, errors.Newf("transcript shrank from %d to %d entries", len(before), len(after))
	}

	delta := len(after) - len(before)
	if delta > 0 {
		res.Used = true
		res.CallCount = delta
	}

	added := after[len(before):]
	var queries []string
	for _, msg := range added {
		if hasMarker(strings.ToLower(messageText(msg)), transcriptMarkers) {
			res.Used = true
		}
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.ToolCall:
				if p.FunctionCall == nil {
					continue
				}
				res.Tools = appendUnique(res.Tools, p.FunctionCall.Name)
				queries = append(queries, ExtractQueries(decodeArguments(p.FunctionCall.Arguments))...)
			case llms.ToolCallResponse:
				queries = append(queries, ExtractQueries(decodeArguments(p.Content))...)
			case llms.TextContent:
				queries = append(queries, ExtractQueries(decodeArguments(p.Text))...)
			}
		}
	}

	res.Queries = dedup(queries)
	if len(res.Queries) > MaxLoggedQueries {
		res.Queries = res.Queries[:MaxLoggedQueries]
	}
	return res, nil
}

// DetectFromResponse infers tool usage from the final response text.
func DetectFromResponse(text string) Result {
	if hasMarker(strings.ToLower(text), responseMarkers) {
		return Result{Used: true, Tools: []string{ResponseToolName}}
	}
	return Result{}
}

// ExtractQueries walks strings, maps, slices and structs and returns the
// GraphQL queries found, in order and without duplicates.
func ExtractQueries(v any) []string {
	return dedup(findQueries(v, 0))
}

const maxDepth = 32

func findQueries(v any, depth int) []string {
	if depth > maxDepth {
		return nil
	}
	switch t := v.(type) {
	case nil, bool, float64, json.Number:
		return nil
	case string:
		if looksLikeQuery(t) {
			return []string{t}
		}
		return nil
	case map[string]any:
		var res []string
		if q, ok := t["query"].(string); ok {
			res = append(res, q)
		}
		for _, k := range slices.Sorted(maps.Keys(t)) {
			res = append(res, findQueries(t[k], depth+1)...)
		}
		return res
	case []any:
		var res []string
		for _, item := range t {
			res = append(res, findQueries(item, depth+1)...)
		}
		return res
	case []string:
		var res []string
		for _, item := range t {
			res = append(res, findQueries(item, depth+1)...)
		}
		return res
	default:
		// structs and typed collections are inspected through their JSON form
		js, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var generic any
		if err = json.Unmarshal(js, &generic); err != nil {
			return nil
		}
		if _, isString := generic.(string); isString {
			return nil
		}
		return findQueries(generic, depth+1)
	}
}

func looksLikeQuery(s string) bool {
	if !strings.Contains(s, "{") || !strings.Contains(s, "}") {
		return false
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "query") || strings.Contains(lower, "mutation")
}

// decodeArguments returns the JSON embedded in s, or s itself.
func decodeArguments(s string) any {
	if v, ok := llmutils.DecodeJSON(s); ok {
		return v
	}
	return s
}

func messageText(msg llms.Message) string {
	var b strings.Builder
	b.WriteString(string(msg.Role))
	b.WriteByte(' ')
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			b.WriteString(p.Text)
		case llms.ToolCall:
			b.WriteString("tool_call ")
			if p.FunctionCall != nil {
				b.WriteString(p.FunctionCall.Name)
				b.WriteByte(' ')
				b.WriteString(p.FunctionCall.Arguments)
			}
		case llms.ToolCallResponse:
			b.WriteString("tool_result ")
			b.WriteString(p.Name)
			b.WriteByte(' ')
			b.WriteString(p.Content)
		default:
			if js, err := json.Marshal(p); err == nil {
				b.Write(js)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func hasMarker(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func dedup(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	res := make([]string, 0, len(list))
	for _, q := range list {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		res = append(res, q)
	}
	return res
}
