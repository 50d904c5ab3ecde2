package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const maxHistoryLimit = 200

func (s *Store) InsertChatLog(ctx context.Context, e ChatLogEntry) (int64, error) {
	q := s.sql.Insert("chat_log").
		Columns("request_id", "model_alias", "provider_id", "family", "prompt_chars", "enc_prompt", "status", "degraded", "latency_ms").
		Values(e.RequestID, e.ModelAlias, e.ProviderID, e.Family, e.PromptChars, e.EncPrompt, e.Status, e.Degraded, e.LatencyMS).
		Suffix("RETURNING id")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert chat log query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert chat log: %w", err)
	}
	return id, nil
}

// ListRecentChatLogs returns the newest entries first. limit is clamped to
// [1, 200].
func (s *Store) ListRecentChatLogs(ctx context.Context, limit int) ([]ChatLogEntry, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	q := s.sql.Select("id", "request_id", "model_alias", "provider_id", "family", "prompt_chars", "enc_prompt", "status", "degraded", "latency_ms", "created_at").
		From("chat_log").
		OrderBy("id DESC").
		Limit(uint64(limit))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chat logs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat logs: %w", err)
	}
	defer rows.Close()

	out := make([]ChatLogEntry, 0, limit)
	for rows.Next() {
		var (
			e   ChatLogEntry
			enc sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ModelAlias, &e.ProviderID, &e.Family, &e.PromptChars, &enc, &e.Status, &e.Degraded, &e.LatencyMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat log: %w", err)
		}
		if enc.Valid {
			v := enc.String
			e.EncPrompt = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat logs: %w", err)
	}
	return out, nil
}
