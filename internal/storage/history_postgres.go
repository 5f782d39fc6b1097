package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garrettladley/rally/internal/migrations/postgres"
	"github.com/garrettladley/rally/internal/protocol"
)

var _ History = (*PostgresHistory)(nil)

type PostgresHistory struct {
	pool *pgxpool.Pool
}

// NewPostgresHistory connects to databaseURL and applies pending
// migrations.
func NewPostgresHistory(ctx context.Context, databaseURL string) (*PostgresHistory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := postgres.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return &PostgresHistory{pool: pool}, nil
}

func (s *PostgresHistory) Insert(ctx context.Context, userID string, n protocol.Notification) (bool, error) {
	data, err := encodeData(n.Data)
	if err != nil {
		return false, err
	}

	var readAt *time.Time
	if n.Read {
		now := time.Now()
		readAt = &now
	}

	// ON CONFLICT DO NOTHING affects no rows for a duplicate id
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, message, data, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, userID, string(n.Type), n.Title, n.Message, data, n.Timestamp, readAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresHistory) List(ctx context.Context, userID string, limit int) ([]protocol.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, title, message, data, created_at, read_at IS NOT NULL
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		userID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (protocol.Notification, error) {
		var (
			n    protocol.Notification
			kind string
			data []byte
		)
		if err := row.Scan(&n.ID, &kind, &n.Title, &n.Message, &data, &n.Timestamp, &n.Read); err != nil {
			return protocol.Notification{}, err
		}
		n.Type = protocol.Kind(kind)
		n.Timestamp = n.Timestamp.UTC()
		decoded, err := decodeData(data)
		if err != nil {
			return protocol.Notification{}, err
		}
		n.Data = decoded
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan notifications: %w", err)
	}
	return notifications, nil
}

func (s *PostgresHistory) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresHistory) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE user_id = $1 AND id = ANY($2) AND read_at IS NULL`,
		userID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresHistory) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresHistory) Close() error {
	s.pool.Close()
	return nil
}
