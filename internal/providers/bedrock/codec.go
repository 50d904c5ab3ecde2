package bedrock

import (
	"encoding/json"
	"fmt"
	"strings"

	"bedrockchat/internal/providers"
)

const (
	defaultAnthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens        = 1000
	defaultTemperature      = 0.7
	defaultTopP             = 0.9

	previewLimit = 200
)

// Options are the generation knobs shared by every family.
type Options struct {
	AnthropicVersion string
	MaxTokens        int
	Temperature      float64
	TopP             float64
}

func (o Options) withDefaults() Options {
	if o.AnthropicVersion == "" {
		o.AnthropicVersion = defaultAnthropicVersion
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = defaultTemperature
	}
	if o.TopP <= 0 {
		o.TopP = defaultTopP
	}
	return o
}

// buildBody renders the InvokeModel body for the target family. Unknown
// families get the Anthropic envelope.
func buildBody(family providers.Family, prompt string, opts Options) ([]byte, error) {
	var payload any
	switch family {
	case providers.FamilyTitan:
		payload = titanPayload(prompt, opts)
	case providers.FamilyLlama:
		payload = llamaPayload(prompt, opts)
	case providers.FamilyAnthropic, providers.FamilyUnknown:
		payload = anthropicPayload(prompt, opts)
	default:
		return nil, fmt.Errorf("no payload builder for family %s", family)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", family, err)
	}
	return b, nil
}

// parseBody extracts the reply text. A reply that arrived but does not have
// the expected shape is not an error: the returned response carries a
// placeholder and the anomaly description.
func parseBody(family providers.Family, body []byte) providers.ChatResponse {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return anomaly(fmt.Sprintf("[Unrecognized response format: %s]", preview(body)), "response body is not a JSON object: "+err.Error())
	}

	switch family {
	case providers.FamilyAnthropic:
		return parseAnthropic(doc)
	case providers.FamilyTitan:
		return parseTitan(doc)
	case providers.FamilyLlama:
		return parseLlama(doc)
	default:
		return parseUnknown(doc, body)
	}
}

func anomaly(placeholder, reason string) providers.ChatResponse {
	return providers.ChatResponse{Text: placeholder, Anomaly: reason}
}

func preview(body []byte) string {
	if len(body) <= previewLimit {
		return string(body)
	}
	return strings.ToValidUTF8(string(body[:previewLimit]), "") + "..."
}
