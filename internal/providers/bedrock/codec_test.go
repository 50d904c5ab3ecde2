package bedrock

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedrockchat/internal/providers"
)

func TestBuildBodyAnthropic(t *testing.T) {
	body, err := buildBody(providers.FamilyAnthropic, "hello", Options{}.withDefaults())
	require.NoError(t, err)

	var payload struct {
		AnthropicVersion string           `json:"anthropic_version"`
		MaxTokens        int              `json:"max_tokens"`
		Messages         []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "bedrock-2023-05-31", payload.AnthropicVersion)
	assert.Equal(t, 1000, payload.MaxTokens)
	require.Len(t, payload.Messages, 1, "exactly one message")
	assert.Equal(t, map[string]any{"role": "user", "content": "hello"}, payload.Messages[0])
}

func TestBuildBodyUnknownFamilyUsesAnthropicShape(t *testing.T) {
	body, err := buildBody(providers.FamilyUnknown, "hello", Options{}.withDefaults())
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Contains(t, payload, "messages")
}

func TestBuildBodyTitan(t *testing.T) {
	body, err := buildBody(providers.FamilyTitan, "hello", Options{}.withDefaults())
	require.NoError(t, err)

	var payload struct {
		InputText string             `json:"inputText"`
		Config    map[string]float64 `json:"textGenerationConfig"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "hello", payload.InputText)
	assert.Equal(t, map[string]float64{"maxTokenCount": 1000, "temperature": 0.7, "topP": 0.9}, payload.Config)
}

func TestBuildBodyLlama(t *testing.T) {
	body, err := buildBody(providers.FamilyLlama, "hello", Options{MaxTokens: 256}.withDefaults())
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "<s>[INST] hello [/INST]", payload["prompt"])
	assert.Equal(t, float64(256), payload["max_gen_len"])
	assert.Equal(t, 0.7, payload["temperature"])
	assert.Equal(t, 0.9, payload["top_p"])
}

func TestParseBody(t *testing.T) {
	tests := []struct {
		name     string
		family   providers.Family
		body     string
		want     string
		degraded bool
	}{
		{name: "anthropic text", family: providers.FamilyAnthropic, body: `{"content":[{"type":"text","text":"hi"}]}`, want: "hi"},
		{name: "anthropic empty content", family: providers.FamilyAnthropic, body: `{"content":[]}`, want: placeholderNoContent, degraded: true},
		{name: "anthropic missing content", family: providers.FamilyAnthropic, body: `{"id":"msg"}`, want: placeholderNoContent, degraded: true},
		{name: "anthropic tool block", family: providers.FamilyAnthropic, body: `{"content":[{"type":"tool_use","id":"x"}]}`, want: placeholderNonText, degraded: true},
		{name: "anthropic string block", family: providers.FamilyAnthropic, body: `{"content":["hi"]}`, want: placeholderNonText, degraded: true},
		{name: "anthropic text missing", family: providers.FamilyAnthropic, body: `{"content":[{"type":"text"}]}`, want: placeholderEmptyText, degraded: true},
		{name: "titan", family: providers.FamilyTitan, body: `{"results":[{"outputText":"from titan"}]}`, want: "from titan"},
		{name: "titan empty", family: providers.FamilyTitan, body: `{"results":[]}`, want: placeholderNoTitanText, degraded: true},
		{name: "llama", family: providers.FamilyLlama, body: `{"generation":"from llama"}`, want: "from llama"},
		{name: "llama missing", family: providers.FamilyLlama, body: `{"stop_reason":"length"}`, want: placeholderNoGenerated, degraded: true},
		{name: "unknown content wins", family: providers.FamilyUnknown, body: `{"content":"c","text":"t","response":"r"}`, want: "c"},
		{name: "unknown text before response", family: providers.FamilyUnknown, body: `{"text":"t","response":"r"}`, want: "t"},
		{name: "unknown response", family: providers.FamilyUnknown, body: `{"response":"r"}`, want: "r"},
		{name: "unknown content blocks", family: providers.FamilyUnknown, body: `{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`, want: "a\nb"},
		{name: "unknown non-text content decides", family: providers.FamilyUnknown, body: `{"content":{"parts":["x"]},"text":"t"}`, want: `[Unrecognized response format: {"content":{"parts":["x"]},"text":"t"}]`, degraded: true},
		{name: "unknown null content decides", family: providers.FamilyUnknown, body: `{"content":null,"response":"r"}`, want: `[Unrecognized response format: {"content":null,"response":"r"}]`, degraded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseBody(tt.family, []byte(tt.body))
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, tt.degraded, got.Degraded(), "anomaly %q", got.Anomaly)
		})
	}
}

func TestParseBodyUnknownShapeReturnsTruncatedPreview(t *testing.T) {
	body := `{"outputs":"` + strings.Repeat("x", 500) + `"}`
	got := parseBody(providers.FamilyUnknown, []byte(body))
	require.True(t, got.Degraded())
	assert.True(t, strings.HasPrefix(got.Text, "[Unrecognized response format: {\"outputs\""), got.Text)
	assert.True(t, strings.HasSuffix(got.Text, "...]"), got.Text)
	assert.LessOrEqual(t, len(got.Text), previewLimit+64, "placeholder not truncated")
}

func TestParseBodyNonJSONIsSoft(t *testing.T) {
	got := parseBody(providers.FamilyAnthropic, []byte("<html>bad gateway</html>"))
	require.True(t, got.Degraded(), "%#v", got)
	assert.Contains(t, got.Text, "bad gateway")
}
