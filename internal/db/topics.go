package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/store"
)

// GetTopic retrieves a topic by id.
func (s *Store) GetTopic(ctx context.Context, topicID string) (*card.Topic, error) {
	var (
		t         card.Topic
		createdAt int64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM topics WHERE id = ?`, topicID,
	).Scan(&t.ID, &t.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// ListTopics returns all topics ordered by name.
func (s *Store) ListTopics(ctx context.Context) ([]card.Topic, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, name, created_at FROM topics ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	topics := make([]card.Topic, 0)
	for rows.Next() {
		var (
			t         card.Topic
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.CreatedAt = fromMillis(createdAt)
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}
