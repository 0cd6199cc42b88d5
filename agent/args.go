package agent

import (
	"encoding/json"
	"strings"
)

// normalizeArgs repairs a pathology seen with some models (llama3.2 among
// them): a string parameter arrives double-serialized, carrying a JSON
// object that wraps the real value under the same key, e.g. code =
// `{"code": "print(1)"}`. One level is unwrapped when detected; anything
// else passes through untouched. Never fails.
func normalizeArgs(args map[string]interface{}) map[string]interface{} {
	cleaned := make(map[string]interface{}, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			cleaned[k] = v
			continue
		}
		stripped := strings.TrimSpace(s)
		if strings.HasPrefix(stripped, "{") || strings.HasPrefix(stripped, "[") {
			var parsed interface{}
			if err := json.Unmarshal([]byte(stripped), &parsed); err == nil {
				if inner, ok := parsed.(map[string]interface{}); ok {
					if unwrapped, ok := inner[k]; ok {
						cleaned[k] = unwrapped
						continue
					}
				}
			}
		}
		cleaned[k] = v
	}
	return cleaned
}
