package storage

import "time"

// ChatLogEntry is one handled /api/chat call. EncPrompt is only set when a
// master key is configured; the plaintext prompt is never stored.
type ChatLogEntry struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	ModelAlias  string    `json:"model"`
	ProviderID  string    `json:"model_id"`
	Family      string    `json:"family"`
	PromptChars int       `json:"prompt_chars"`
	EncPrompt   *string   `json:"-"`
	Status      int       `json:"status"`
	Degraded    bool      `json:"degraded"`
	LatencyMS   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
