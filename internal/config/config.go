package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bedrockchat/internal/providers/registry"
	"bedrockchat/internal/storage"
)

var (
	ErrInvalidPolicy   = errors.New("UNKNOWN_MODEL_POLICY must be 'reject', 'default' or 'passthrough'")
	ErrInvalidDBDriver = errors.New("DB_DRIVER must be 'sqlite' or 'postgres'")
	ErrMissingRegion   = errors.New("AWS_REGION_NAME is required")
)

type Config struct {
	HTTP    HTTPConfig
	Bedrock BedrockConfig
	Models  ModelsConfig
	Redis   RedisConfig
	Rate    RateConfig
	DB      DBConfig
	ChatLog ChatLogConfig
	Crypto  CryptoConfig
	Log     LogConfig
}

type HTTPConfig struct {
	ListenAddr        string
	HealthPath        string
	MetricsPath       string
	AllowedOrigins    []string
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

type BedrockConfig struct {
	Region        string
	Profile       string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	InvokeTimeout time.Duration
}

type ModelsConfig struct {
	DefaultAlias string
	File         string
	Policy       registry.UnknownPolicy
}

// RedisConfig is optional; an empty Addr disables rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateConfig struct {
	PerHour int64
}

// DBConfig is optional; an empty DSN disables the chat log.
type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type ChatLogConfig struct {
	Workers int
	Buffer  int
}

// CryptoConfig is empty when no master key is configured.
type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

func (c CryptoConfig) Enabled() bool {
	return len(c.Keys) > 0
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment after merging .env files.
// Variables already set in the process environment win.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	listen := mustEnv("LISTEN_ADDR", "")
	if listen == "" {
		listen = ":" + mustEnv("PORT", "5000")
	}

	policy, err := registry.ParsePolicy(mustEnv("UNKNOWN_MODEL_POLICY", string(registry.PolicyPassthrough)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr:        listen,
			HealthPath:        mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:       mustEnv("METRICS_PATH", "/metrics"),
			AllowedOrigins:    splitList(mustEnv("CORS_ALLOWED_ORIGINS", "*")),
			TrustProxyHeaders: mustBool("TRUST_PROXY_HEADERS", false),
		},
		Bedrock: BedrockConfig{
			Region:        mustEnv("AWS_REGION_NAME", mustEnv("AWS_REGION", "us-east-1")),
			Profile:       mustEnv("AWS_PROFILE", ""),
			MaxTokens:     mustInt("MAX_TOKENS", 1000),
			Temperature:   mustFloat("TEMPERATURE", 0.7),
			TopP:          mustFloat("TOP_P", 0.9),
			InvokeTimeout: mustDuration("INVOKE_TIMEOUT", 0),
		},
		Models: ModelsConfig{
			DefaultAlias: mustEnv("DEFAULT_MODEL", registry.DefaultAlias),
			File:         mustEnv("MODELS_FILE", ""),
			Policy:       policy,
		},
		Redis: RedisConfig{
			Addr:     mustEnv("REDIS_ADDR", ""),
			Password: mustEnv("REDIS_PASSWORD", ""),
			DB:       mustInt("REDIS_DB", 0),
		},
		Rate: RateConfig{
			PerHour: mustInt64("RATE_LIMIT_PER_HOUR", 120),
		},
		DB: DBConfig{
			Driver:      storage.NormalizeDriver(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         mustEnv("DB_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		ChatLog: ChatLogConfig{
			Workers: mustInt("CHAT_LOG_WORKERS", 2),
			Buffer:  mustInt("CHAT_LOG_BUFFER", 256),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.Bedrock.Region == "" {
		return nil, ErrMissingRegion
	}
	if cfg.DB.Driver != "sqlite" && cfg.DB.Driver != "postgres" {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDBDriver, cfg.DB.Driver)
	}

	cc, err := loadCryptoConfig()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc

	return cfg, nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(k, "MASTER_KEY_") || !strings.HasSuffix(k, "_B64") || k == "MASTER_KEY_B64" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "MASTER_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		if len(keys) > 1 {
			return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID is required when %d master keys are set", len(keys))
		}
		for id := range keys {
			current = id
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{
		CurrentKeyID: current,
		Keys:         keys,
	}, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustEnv(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustFloat(key string, def float64) float64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
