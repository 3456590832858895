package assistant

import (
	"context"
	"fmt"

	"github.com/projectgen/liya/pkg/trace"
)

// ToolHandler executes one tool call. Every handler returns a short
// natural-language acknowledgment that flows back into the conversation.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (string, error)

// Parameter describes one tool argument.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// Tool is a named action the language model may invoke mid-dialogue.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     ToolHandler
}

// stringArg extracts a string argument, empty when absent or mistyped.
func stringArg(args map[string]interface{}, key string) string {
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return v
}

// intArg extracts an integer argument. JSON decoding yields float64, so
// both representations are accepted.
func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Dispatch runs the named tool against the given arguments.
func (a *Assistant) Dispatch(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tool, ok := a.toolIndex[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	ctx, span := trace.StartSpan(ctx, "assistant.tool")
	defer span.End()
	span.SetAttributes(trace.ToolAttrs(name)...)

	result, err := tool.Handler(ctx, args)
	if err != nil {
		trace.RecordError(span, err)
	}
	return result, err
}
