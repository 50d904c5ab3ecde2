package httpapi

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bedrockchat/internal/metrics"
	"bedrockchat/internal/providers"
	"bedrockchat/internal/providers/registry"
	"bedrockchat/internal/storage"
	"bedrockchat/internal/worker"
)

// Catalog resolves model selectors and lists the configured models.
type Catalog interface {
	Resolve(selector string) (providers.Target, error)
	Models(ctx context.Context) ([]registry.ModelDescriptor, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, client string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error)
}

type ChatLog interface {
	Submit(rec worker.Record) bool
}

type History interface {
	ListRecentChatLogs(ctx context.Context, limit int) ([]storage.ChatLogEntry, error)
}

type Service struct {
	catalog       Catalog
	provider      providers.Provider
	rateLimiter   RateLimiter
	chatLog       ChatLog
	history       History
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	invokeTimeout time.Duration
	now           func() time.Time
}

// Config wires the service. RateLimiter, ChatLog and History are optional;
// leave them nil to turn the matching feature off.
type Config struct {
	Catalog       Catalog
	Provider      providers.Provider
	RateLimiter   RateLimiter
	ChatLog       ChatLog
	History       History
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
	InvokeTimeout time.Duration
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.InvokeTimeout < 0 {
		cfg.InvokeTimeout = 0
	}
	return &Service{
		catalog:       cfg.Catalog,
		provider:      cfg.Provider,
		rateLimiter:   cfg.RateLimiter,
		chatLog:       cfg.ChatLog,
		history:       cfg.History,
		logger:        cfg.Logger,
		metrics:       m,
		invokeTimeout: cfg.InvokeTimeout,
		now:           time.Now,
	}
}
