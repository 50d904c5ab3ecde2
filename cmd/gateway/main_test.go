package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedrockchat/internal/config"
	"bedrockchat/internal/providers/registry"
	"bedrockchat/internal/storage"
	"bedrockchat/internal/worker"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), "parseLogLevel(%q)", in)
	}
}

func TestLoadCatalogBuiltin(t *testing.T) {
	reg, err := loadCatalog(config.ModelsConfig{DefaultAlias: "claude-3-haiku", Policy: registry.PolicyReject})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku", reg.Default().Alias)
	assert.Len(t, reg.List(), len(registry.Builtin()))
}

type chatLogSink struct {
	mu      sync.Mutex
	entries []storage.ChatLogEntry
}

func (s *chatLogSink) InsertChatLog(_ context.Context, e storage.ChatLogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return int64(len(s.entries)), nil
}

func (s *chatLogSink) requestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		ids = append(ids, e.RequestID)
	}
	return ids
}

// inFlightServer submits a chat log record while Shutdown is waiting on
// active connections, the way a finishing /api/chat handler would.
type inFlightServer struct {
	w *worker.Worker
}

func (s inFlightServer) Shutdown(context.Context) error {
	time.Sleep(20 * time.Millisecond)
	s.w.Submit(worker.Record{Entry: storage.ChatLogEntry{RequestID: "late-request", Status: 200}})
	return nil
}

func TestShutdownWritesRecordsFromDrainingRequests(t *testing.T) {
	sink := &chatLogSink{}
	w := worker.New(worker.Config{Sink: sink, Buffer: 4, Logger: zerolog.Nop()})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(workerCtx, 2)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdown(ctx, inFlightServer{w: w}, stopWorker, done)

	select {
	case <-done:
	default:
		require.Fail(t, "worker still running after shutdown returned")
	}
	assert.Equal(t, []string{"late-request"}, sink.requestIDs())
}

func TestShutdownGivesUpWhenWorkerHangs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	stopped := false
	shutdown(ctx, noopServer{}, func() { stopped = true }, make(chan struct{}))
	assert.True(t, stopped)
	assert.Error(t, ctx.Err())
}

type noopServer struct{}

func (noopServer) Shutdown(context.Context) error { return nil }
