package bedrock

import (
	"fmt"

	"bedrockchat/internal/providers"
)

const (
	placeholderNoContent   = "[No text content received from model]"
	placeholderNonText     = "[Received non-text or improperly formatted content]"
	placeholderEmptyText   = "[Empty text content]"
	placeholderNoTitanText = "[No output text received from model]"
	placeholderNoGenerated = "[No generation received from model]"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
}

func anthropicPayload(prompt string, opts Options) anthropicRequest {
	return anthropicRequest{
		AnthropicVersion: opts.AnthropicVersion,
		MaxTokens:        opts.MaxTokens,
		Messages:         []anthropicMessage{{Role: "user", Content: prompt}},
	}
}

func parseAnthropic(doc map[string]any) providers.ChatResponse {
	blocks, ok := doc["content"].([]any)
	if !ok || len(blocks) == 0 {
		return anomaly(placeholderNoContent, "content array missing or empty")
	}

	first, ok := blocks[0].(map[string]any)
	if !ok || first["type"] != "text" {
		return anomaly(placeholderNonText, fmt.Sprintf("first content block is not text: %v", blocks[0]))
	}

	text, ok := first["text"].(string)
	if !ok {
		return anomaly(placeholderEmptyText, "text block has no text field")
	}
	return providers.ChatResponse{Text: text}
}
