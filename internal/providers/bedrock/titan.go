package bedrock

import "bedrockchat/internal/providers"

type titanGenerationConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

type titanRequest struct {
	InputText            string                `json:"inputText"`
	TextGenerationConfig titanGenerationConfig `json:"textGenerationConfig"`
}

func titanPayload(prompt string, opts Options) titanRequest {
	return titanRequest{
		InputText: prompt,
		TextGenerationConfig: titanGenerationConfig{
			MaxTokenCount: opts.MaxTokens,
			Temperature:   opts.Temperature,
			TopP:          opts.TopP,
		},
	}
}

func parseTitan(doc map[string]any) providers.ChatResponse {
	results, ok := doc["results"].([]any)
	if !ok || len(results) == 0 {
		return anomaly(placeholderNoTitanText, "results array missing or empty")
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return anomaly(placeholderNoTitanText, "first result is not an object")
	}
	text, ok := first["outputText"].(string)
	if !ok {
		return anomaly(placeholderNoTitanText, "first result has no outputText")
	}
	return providers.ChatResponse{Text: text}
}
