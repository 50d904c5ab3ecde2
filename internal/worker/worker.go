package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bedrockchat/internal/crypto"
	"bedrockchat/internal/metrics"
	"bedrockchat/internal/storage"
)

const writeTimeout = 5 * time.Second

// Sink persists chat log entries.
type Sink interface {
	InsertChatLog(ctx context.Context, e storage.ChatLogEntry) (int64, error)
}

// Record is a chat log entry plus the prompt it describes. Prompt is sealed
// before the write when a sealer is configured and discarded otherwise.
type Record struct {
	Entry  storage.ChatLogEntry
	Prompt string
}

// Worker writes chat log records off the request path.
type Worker struct {
	sink    Sink
	sealer  *crypto.Sealer
	jobs    chan Record
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type Config struct {
	Sink    Sink
	Sealer  *crypto.Sealer
	Buffer  int
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 256
	}
	return &Worker{
		sink:    cfg.Sink,
		sealer:  cfg.Sealer,
		jobs:    make(chan Record, cfg.Buffer),
		logger:  cfg.Logger,
		metrics: m,
	}
}

// Submit enqueues rec without blocking. It reports false when the buffer is
// full and the record was dropped.
func (w *Worker) Submit(rec Record) bool {
	select {
	case w.jobs <- rec:
		return true
	default:
		w.metrics.ChatLogDropped.Inc()
		w.logger.Warn().Str("request_id", rec.Entry.RequestID).Msg("chat log buffer full, dropping record")
		return false
	}
}

// Start runs concurrency writers until ctx is done, then drains what is
// already buffered.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		select {
		case rec := <-w.jobs:
			w.handle(ctx, log, rec)
		case <-ctx.Done():
			w.drain(ctx, log)
			return
		}
	}
}

func (w *Worker) drain(ctx context.Context, log zerolog.Logger) {
	for {
		select {
		case rec := <-w.jobs:
			w.handle(ctx, log, rec)
		default:
			return
		}
	}
}

func (w *Worker) handle(ctx context.Context, log zerolog.Logger, rec Record) {
	entry := rec.Entry
	entry.EncPrompt = nil
	if w.sealer != nil && rec.Prompt != "" {
		sealed, err := w.sealer.Seal(rec.Prompt)
		if err != nil {
			log.Error().Err(err).Str("request_id", entry.RequestID).Msg("failed to seal prompt")
		} else {
			entry.EncPrompt = &sealed
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if _, err := w.sink.InsertChatLog(writeCtx, entry); err != nil {
		log.Error().Err(err).Str("request_id", entry.RequestID).Msg("failed to write chat log")
	}
}
