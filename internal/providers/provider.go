package providers

import (
	"context"
	"strings"
)

// Family groups models that share a request/response envelope.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyAnthropic
	FamilyTitan
	FamilyLlama
)

func (f Family) String() string {
	switch f {
	case FamilyAnthropic:
		return "anthropic"
	case FamilyTitan:
		return "titan"
	case FamilyLlama:
		return "llama"
	default:
		return "unknown"
	}
}

// DetectFamily classifies a Bedrock model id. Substring matching keeps
// cross-region ids such as "us.anthropic.claude-..." in the right family.
func DetectFamily(providerID string) Family {
	id := strings.ToLower(strings.TrimSpace(providerID))
	switch {
	case strings.Contains(id, "anthropic"):
		return FamilyAnthropic
	case strings.Contains(id, "amazon.titan"):
		return FamilyTitan
	case strings.Contains(id, "meta.llama"):
		return FamilyLlama
	default:
		return FamilyUnknown
	}
}

// Target is a resolved model: the alias the caller picked, the upstream id and its family.
type Target struct {
	Alias      string
	ProviderID string
	Family     Family
	// Unregistered is set when the selector was not in the catalog and an
	// unknown-model policy produced this target.
	Unregistered bool
}

type ChatRequest struct {
	Prompt string
	Target Target
}

// ChatResponse carries either the full model text or, when Anomaly is set,
// a placeholder describing a reply that arrived in an unexpected shape.
type ChatResponse struct {
	Text    string
	Anomaly string
}

func (r ChatResponse) Degraded() bool {
	return r.Anomaly != ""
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
