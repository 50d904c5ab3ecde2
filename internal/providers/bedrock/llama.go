package bedrock

import "bedrockchat/internal/providers"

type llamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

func llamaPayload(prompt string, opts Options) llamaRequest {
	return llamaRequest{
		Prompt:      "<s>[INST] " + prompt + " [/INST]",
		MaxGenLen:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
}

func parseLlama(doc map[string]any) providers.ChatResponse {
	text, ok := doc["generation"].(string)
	if !ok {
		return anomaly(placeholderNoGenerated, "generation field missing")
	}
	return providers.ChatResponse{Text: text}
}
