package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), "sqlite", ":memory:", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestInsertAndListChatLogs(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sealed := `{"key_id":"k1"}`
	first, err := st.InsertChatLog(ctx, ChatLogEntry{
		RequestID:   "req-1",
		ModelAlias:  "claude-3-haiku",
		ProviderID:  "anthropic.claude-3-haiku-20240307-v1:0",
		Family:      "anthropic",
		PromptChars: 12,
		EncPrompt:   &sealed,
		Status:      200,
		LatencyMS:   42,
	})
	require.NoError(t, err)

	second, err := st.InsertChatLog(ctx, ChatLogEntry{
		RequestID:  "req-2",
		ModelAlias: "titan-text-lite",
		ProviderID: "amazon.titan-text-lite-v1",
		Family:     "titan",
		Status:     200,
		Degraded:   true,
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	got, err := st.ListRecentChatLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "req-2", got[0].RequestID)
	assert.True(t, got[0].Degraded)
	assert.Nil(t, got[0].EncPrompt)

	assert.Equal(t, "req-1", got[1].RequestID)
	assert.Equal(t, 12, got[1].PromptChars)
	assert.Equal(t, int64(42), got[1].LatencyMS)
	require.NotNil(t, got[1].EncPrompt)
	assert.Equal(t, sealed, *got[1].EncPrompt)
	assert.False(t, got[1].CreatedAt.IsZero())
}

func TestListRecentChatLogsClampsLimit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.InsertChatLog(ctx, ChatLogEntry{ModelAlias: "m", ProviderID: "p", Family: "unknown", Status: 200})
		require.NoError(t, err)
	}

	got, err := st.ListRecentChatLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = st.ListRecentChatLogs(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestOpenRejectsBadInput(t *testing.T) {
	_, err := Open(context.Background(), "sqlite", "", true)
	assert.Error(t, err)

	_, err = Open(context.Background(), "mysql", "whatever", true)
	assert.Error(t, err)
}

func TestNormalizeDriver(t *testing.T) {
	assert.Equal(t, "postgres", NormalizeDriver(" PostgreSQL "))
	assert.Equal(t, "postgres", NormalizeDriver("pgx"))
	assert.Equal(t, "sqlite", NormalizeDriver("sqlite3"))
	assert.Equal(t, "mysql", NormalizeDriver("mysql"))
}
