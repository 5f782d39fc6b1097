package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	go_json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/garrettladley/rally/internal/migrations"
	"github.com/garrettladley/rally/internal/protocol"
)

var _ History = (*SQLiteHistory)(nil)

// SQLiteHistory keeps history in a single SQLite file. It is meant for
// local development and single-node deployments.
type SQLiteHistory struct {
	db *sql.DB
}

func NewSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one writer; also keeps an in-memory database alive on one connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

func (s *SQLiteHistory) Insert(ctx context.Context, userID string, n protocol.Notification) (bool, error) {
	data, err := encodeData(n.Data)
	if err != nil {
		return false, err
	}

	var dataArg any
	if data != nil {
		dataArg = string(data)
	}

	var readAt *int64
	if n.Read {
		now := time.Now().UnixMilli()
		readAt = &now
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, message, data, created_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, userID, string(n.Type), n.Title, n.Message, dataArg, n.Timestamp.UnixMilli(), readAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteHistory) List(ctx context.Context, userID string, limit int) ([]protocol.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, title, message, data, created_at, read_at IS NOT NULL
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []protocol.Notification
	for rows.Next() {
		var (
			n         protocol.Notification
			kind      string
			data      sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &kind, &n.Title, &n.Message, &data, &createdAt, &n.Read); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = protocol.Kind(kind)
		n.Timestamp = time.UnixMilli(createdAt).UTC()
		if data.Valid {
			if n.Data, err = decodeData([]byte(data.String)); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

func (s *SQLiteHistory) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *SQLiteHistory) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, time.Now().UnixMilli(), userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL AND id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read update result: %w", err)
	}
	return int(affected), nil
}

func (s *SQLiteHistory) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}

func encodeData(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := go_json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification data: %w", err)
	}
	return raw, nil
}

func decodeData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := go_json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification data: %w", err)
	}
	return data, nil
}
