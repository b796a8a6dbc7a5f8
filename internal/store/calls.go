package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ToolCall is one audited tool invocation.
type ToolCall struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	Action     string    `json:"action,omitempty"`
	Success    bool      `json:"success"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CalledAt   time.Time `json:"called_at"`
}

// RecordCall appends call to the audit log. An empty ID or zero CalledAt
// is filled in.
func (s *Store) RecordCall(ctx context.Context, call ToolCall) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.CalledAt.IsZero() {
		call.CalledAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, tool, action, success, error_code, duration_ms, called_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.Tool, call.Action, call.Success, call.ErrorCode, call.DurationMS, formatTime(call.CalledAt),
	)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// RecentCalls returns up to limit calls, newest first.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]ToolCall, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool, action, success, error_code, duration_ms, called_at
		FROM tool_calls
		ORDER BY called_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	calls := []ToolCall{}
	for rows.Next() {
		var c ToolCall
		var calledAt string
		if err := rows.Scan(&c.ID, &c.Tool, &c.Action, &c.Success, &c.ErrorCode, &c.DurationMS, &calledAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if c.CalledAt, err = parseTime(calledAt); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool calls: %w", err)
	}
	return calls, nil
}
