package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"bedrockchat/internal/providers"
)

const DefaultAlias = "claude-3.5-sonnet"

type UnknownPolicy string

const (
	// PolicyReject fails resolution with ErrUnknownModel.
	PolicyReject UnknownPolicy = "reject"
	// PolicyDefault answers with the default model.
	PolicyDefault UnknownPolicy = "default"
	// PolicyPassthrough forwards the selector as a raw Bedrock model id.
	PolicyPassthrough UnknownPolicy = "passthrough"
)

var (
	ErrUnknownModel  = errors.New("unknown model")
	ErrDuplicate     = errors.New("duplicate model")
	ErrNoDefault     = errors.New("default model is not registered")
	ErrInvalidPolicy = errors.New("invalid unknown model policy")
)

type ModelDescriptor struct {
	Alias      string           `yaml:"alias" validate:"required,max=128"`
	ProviderID string           `yaml:"provider_id" validate:"required,max=256"`
	Family     providers.Family `yaml:"-"`
}

type Registry struct {
	models       []ModelDescriptor
	byAlias      map[string]int
	byProviderID map[string]int
	defaultIdx   int
	policy       UnknownPolicy
}

func ParsePolicy(v string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case PolicyReject, PolicyDefault, PolicyPassthrough:
		return p, nil
	case "":
		return PolicyPassthrough, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, v)
	}
}

// Builtin is the catalog served when no models file is configured.
func Builtin() []ModelDescriptor {
	return []ModelDescriptor{
		{Alias: "claude-3.5-sonnet", ProviderID: "anthropic.claude-3-5-sonnet-20240620-v1:0"},
		{Alias: "claude-3-haiku", ProviderID: "anthropic.claude-3-haiku-20240307-v1:0"},
		{Alias: "claude-3-sonnet", ProviderID: "anthropic.claude-3-sonnet-20240229-v1:0"},
		{Alias: "titan-text-express", ProviderID: "amazon.titan-text-express-v1"},
		{Alias: "titan-text-lite", ProviderID: "amazon.titan-text-lite-v1"},
		{Alias: "llama3-8b-instruct", ProviderID: "meta.llama3-8b-instruct-v1:0"},
		{Alias: "llama3-70b-instruct", ProviderID: "meta.llama3-70b-instruct-v1:0"},
	}
}

func New(defaultAlias string, policy UnknownPolicy, models ...ModelDescriptor) (*Registry, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = PolicyPassthrough
	}

	validate := validator.New()
	r := &Registry{
		models:       make([]ModelDescriptor, 0, len(models)),
		byAlias:      make(map[string]int, len(models)),
		byProviderID: make(map[string]int, len(models)),
		defaultIdx:   -1,
		policy:       policy,
	}
	for i, m := range models {
		m.Alias = strings.TrimSpace(m.Alias)
		m.ProviderID = strings.TrimSpace(m.ProviderID)
		if err := validate.Struct(m); err != nil {
			return nil, fmt.Errorf("models[%d]: %w", i, err)
		}
		if _, ok := r.byAlias[m.Alias]; ok {
			return nil, fmt.Errorf("%w: alias %q", ErrDuplicate, m.Alias)
		}
		if _, ok := r.byProviderID[m.ProviderID]; ok {
			return nil, fmt.Errorf("%w: provider id %q", ErrDuplicate, m.ProviderID)
		}
		m.Family = providers.DetectFamily(m.ProviderID)
		r.byAlias[m.Alias] = len(r.models)
		r.byProviderID[m.ProviderID] = len(r.models)
		r.models = append(r.models, m)
	}

	idx, ok := r.byAlias[strings.TrimSpace(defaultAlias)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDefault, defaultAlias)
	}
	r.defaultIdx = idx
	return r, nil
}

type catalogFile struct {
	Default string            `yaml:"default"`
	Models  []ModelDescriptor `yaml:"models"`
}

// LoadFile reads a YAML catalog and merges it over base. Entries with an alias
// already present in base replace it. The file's default, when set, wins over
// defaultAlias.
func LoadFile(path, defaultAlias string, policy UnknownPolicy, base []ModelDescriptor) (*Registry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(content))), &file); err != nil {
		return nil, fmt.Errorf("parse models file: %w", err)
	}

	merged := make([]ModelDescriptor, 0, len(base)+len(file.Models))
	replaced := make(map[string]ModelDescriptor, len(file.Models))
	for _, m := range file.Models {
		replaced[strings.TrimSpace(m.Alias)] = m
	}
	for _, m := range base {
		if override, ok := replaced[m.Alias]; ok {
			merged = append(merged, override)
			delete(replaced, m.Alias)
			continue
		}
		merged = append(merged, m)
	}
	for _, m := range file.Models {
		if _, pending := replaced[strings.TrimSpace(m.Alias)]; pending {
			merged = append(merged, m)
		}
	}

	if strings.TrimSpace(file.Default) != "" {
		defaultAlias = file.Default
	}
	return New(defaultAlias, policy, merged...)
}

// Resolve maps a selector to a target. An empty selector yields the default;
// a selector matching an alias or a registered provider id yields that model.
// Anything else is handled by the registry's unknown-model policy.
func (r *Registry) Resolve(selector string) (providers.Target, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return r.Default(), nil
	}
	if idx, ok := r.byAlias[selector]; ok {
		return r.models[idx].target(), nil
	}
	if idx, ok := r.byProviderID[selector]; ok {
		return r.models[idx].target(), nil
	}

	switch r.policy {
	case PolicyReject:
		return providers.Target{}, fmt.Errorf("%w: %s", ErrUnknownModel, selector)
	case PolicyDefault:
		t := r.Default()
		t.Unregistered = true
		return t, nil
	default:
		return providers.Target{
			Alias:        selector,
			ProviderID:   selector,
			Family:       providers.DetectFamily(selector),
			Unregistered: true,
		}, nil
	}
}

func (r *Registry) Default() providers.Target {
	return r.models[r.defaultIdx].target()
}

func (r *Registry) Policy() UnknownPolicy {
	return r.policy
}

// List returns a copy of the catalog in registration order.
func (r *Registry) List() []ModelDescriptor {
	out := make([]ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// Models satisfies the HTTP layer's catalog contract; a static registry never fails.
func (r *Registry) Models(_ context.Context) ([]ModelDescriptor, error) {
	return r.List(), nil
}

func (m ModelDescriptor) target() providers.Target {
	return providers.Target{Alias: m.Alias, ProviderID: m.ProviderID, Family: m.Family}
}
