package bedrock

import (
	"fmt"
	"strings"

	"bedrockchat/internal/providers"
)

// parseUnknown checks the fields other Bedrock families commonly answer with.
// The first field present decides; a later field is never consulted when an
// earlier one exists but holds no text.
func parseUnknown(doc map[string]any, raw []byte) providers.ChatResponse {
	for _, key := range []string{"content", "text", "response"} {
		v, present := doc[key]
		if !present {
			continue
		}
		if text, ok := anyToText(v); ok {
			return providers.ChatResponse{Text: text}
		}
		return anomaly(unrecognized(raw), fmt.Sprintf("field %q holds no text", key))
	}
	return anomaly(unrecognized(raw), "no content, text or response field")
}

func unrecognized(raw []byte) string {
	return fmt.Sprintf("[Unrecognized response format: %s]", preview(raw))
}

func anyToText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			switch block := item.(type) {
			case string:
				parts = append(parts, block)
			case map[string]any:
				if txt, ok := block["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "\n"), true
	default:
		return "", false
	}
}
