package agent

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/hapershtein/llamagent/session"
)

// Textual tool-call conventions, most specific first. Models without
// native tool support tend to emit one of these.
var textToolPatterns = []*regexp.Regexp{
	// <tool_call>{"name":"...", "arguments":{...}}</tool_call>
	regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`),
	// ```json
	// {"name":"...", "arguments":{...}}
	// ```
	regexp.MustCompile("(?s)```(?:json)?\\s*(\\{[^`]*\"name\"\\s*:[^`]*\\})\\s*```"),
	// bare: {"name":"...", "arguments":{...}}
	regexp.MustCompile(`(?s)(\{"name"\s*:\s*"[^"]+"\s*,\s*"arguments"\s*:\s*\{[^}]*\}\s*\})`),
}

// extractTextToolCalls recovers tool-call intent from free-form model
// output. The first pattern class with at least one raw match wins
// exclusively; its matches are decoded in order and any that fail to
// decode, or lack a name or arguments field, are discarded. The function
// is pure: it never executes anything.
func extractTextToolCalls(text string) []session.ToolCall {
	for _, pat := range textToolPatterns {
		matches := pat.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		var calls []session.ToolCall
		for _, m := range matches {
			if tc, ok := decodeTextToolCall(m[1]); ok {
				calls = append(calls, tc)
			}
		}
		return calls
	}
	return nil
}

func decodeTextToolCall(raw string) (session.ToolCall, bool) {
	var obj struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return session.ToolCall{}, false
	}
	if obj.Name == "" || len(obj.Arguments) == 0 {
		return session.ToolCall{}, false
	}

	tc := session.ToolCall{
		ID:   fmt.Sprintf("text_call_%s", uuid.NewString()),
		Name: obj.Name,
	}
	// Arguments are usually an object, but some models double-encode them
	// as a string; keep the blob for resolveArgs in that case.
	var args map[string]interface{}
	if err := json.Unmarshal(obj.Arguments, &args); err == nil {
		tc.Args = args
		return tc, true
	}
	var blob string
	if err := json.Unmarshal(obj.Arguments, &blob); err == nil {
		tc.ArgsJSON = blob
		return tc, true
	}
	return session.ToolCall{}, false
}
