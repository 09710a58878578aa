package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/store"
)

// CountFirstReviews counts distinct cards whose first grade (a log row with
// prior state New) falls in [since, until], plus the pending card ids.
// UNION drops pending ids that are already logged.
func (s *Store) CountFirstReviews(ctx context.Context, userID, topicID string, since, until time.Time, pending ...string) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT l.card_id
			FROM review_logs l
			JOIN cards c ON c.id = l.card_id
			JOIN questions q ON q.id = c.question_id
			WHERE l.user_id = ? AND q.topic_id = ? AND l.state = ?
				AND l.review >= ? AND l.review <= ?` + strings.Repeat(`
			UNION SELECT ?`, len(pending)) + `
		)
	`

	args := []any{userID, topicID, int(card.New), toMillis(since), toMillis(until)}
	for _, id := range pending {
		args = append(args, id)
	}

	var n int
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count first reviews: %w", err)
	}
	return n, nil
}

// ListDueCards returns the user's persisted non-New cards that are due,
// easiest first.
func (s *Store) ListDueCards(ctx context.Context, userID, topicID string, now time.Time, limit int) ([]card.Flashcard, error) {
	if limit <= 0 {
		return []card.Flashcard{}, nil
	}

	query := `
		SELECT c.id, c.notes, c.stability, c.difficulty, c.due, c.elapsed_days,
			c.scheduled_days, c.learning_steps, c.reps, c.lapses, c.state, c.last_review,
			` + questionColumns + `
		FROM cards c
		JOIN questions q ON q.id = c.question_id
		WHERE c.user_id = ? AND q.topic_id = ? AND c.state != ? AND c.due <= ?
		ORDER BY c.difficulty ASC, c.id ASC
		LIMIT ?
	`

	rows, err := s.conn.QueryContext(ctx, query, userID, topicID, int(card.New), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due cards: %w", err)
	}
	defer rows.Close()

	cards := make([]card.Flashcard, 0)
	for rows.Next() {
		var (
			fc         card.Flashcard
			notes      sql.NullString
			due        int64
			lastReview sql.NullInt64
			state      int
		)
		dest := []any{
			&fc.ID, &notes, &fc.Memory.Stability, &fc.Memory.Difficulty, &due,
			&fc.Memory.ElapsedDays, &fc.Memory.ScheduledDays, &fc.Memory.LearningSteps,
			&fc.Memory.Reps, &fc.Memory.Lapses, &state, &lastReview,
		}
		q, qDest := newQuestionScan()
		if err := rows.Scan(append(dest, qDest...)...); err != nil {
			return nil, fmt.Errorf("scan due card: %w", err)
		}
		fc.Notes = fromNullString(notes)
		fc.Memory.Due = fromMillis(due)
		fc.Memory.State = card.State(state)
		if lastReview.Valid {
			t := fromMillis(lastReview.Int64)
			fc.Memory.LastReview = &t
		}
		fc.Question = q.question()
		cards = append(cards, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due cards: %w", err)
	}

	questions := make([]*card.Question, len(cards))
	for i := range cards {
		questions[i] = &cards[i].Question
	}
	if err := hydrateQuestions(ctx, s.conn, questions); err != nil {
		return nil, err
	}
	return cards, nil
}

// CountDueCards counts the user's due cards in the given states.
func (s *Store) CountDueCards(ctx context.Context, userID, topicID string, now time.Time, states ...card.State) (int, error) {
	if len(states) == 0 {
		return 0, nil
	}

	args := []any{userID, topicID, toMillis(now)}
	for _, st := range states {
		args = append(args, int(st))
	}

	query := `
		SELECT COUNT(*)
		FROM cards c
		JOIN questions q ON q.id = c.question_id
		WHERE c.user_id = ? AND q.topic_id = ? AND c.due <= ?
			AND c.state IN (` + placeholders(len(states)) + `)
	`

	var n int
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count due cards: %w", err)
	}
	return n, nil
}

// UpsertCard writes the memory state for (userID, questionID). Notes are left untouched.
func (s *Store) UpsertCard(ctx context.Context, userID, questionID string, m card.MemoryState) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("upsert card: %w", err)
	}

	var lastReview sql.NullInt64
	if m.LastReview != nil {
		lastReview = sql.NullInt64{Int64: toMillis(*m.LastReview), Valid: true}
	}
	now := time.Now().UnixMilli()

	query := `
		INSERT INTO cards (
			id, user_id, question_id, stability, difficulty, due, elapsed_days,
			scheduled_days, learning_steps, reps, lapses, state, last_review,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, question_id) DO UPDATE SET
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			due = excluded.due,
			elapsed_days = excluded.elapsed_days,
			scheduled_days = excluded.scheduled_days,
			learning_steps = excluded.learning_steps,
			reps = excluded.reps,
			lapses = excluded.lapses,
			state = excluded.state,
			last_review = excluded.last_review,
			updated_at = excluded.updated_at
		RETURNING id
	`

	var cardID string
	err = s.conn.QueryRowContext(ctx, query,
		id, userID, questionID, m.Stability, m.Difficulty, toMillis(m.Due), m.ElapsedDays,
		m.ScheduledDays, m.LearningSteps, m.Reps, m.Lapses, int(m.State), lastReview,
		now, now,
	).Scan(&cardID)
	if err != nil {
		return "", fmt.Errorf("upsert card: %w", err)
	}
	return cardID, nil
}

// InsertReviewLog appends a grading event.
func (s *Store) InsertReviewLog(ctx context.Context, userID string, e card.ReviewLogEntry) error {
	id := e.ID
	if id == "" {
		var err error
		if id, err = newID(); err != nil {
			return fmt.Errorf("insert review log: %w", err)
		}
	}

	query := `
		INSERT INTO review_logs (
			id, card_id, user_id, rating, state, stability, difficulty, elapsed_days,
			last_elapsed_days, scheduled_days, learning_steps, due, review, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		id, e.CardID, userID, int(e.Rating), int(e.State), e.Stability, e.Difficulty, e.ElapsedDays,
		e.LastElapsed, e.ScheduledDays, e.LearningSteps, toMillis(e.Due), toMillis(e.Review),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert review log: %w", err)
	}
	return nil
}

// UpdateNotes sets the notes on a card owned by userID.
func (s *Store) UpdateNotes(ctx context.Context, userID, cardID, notes string) error {
	query := `
		UPDATE cards
		SET notes = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`

	result, err := s.conn.ExecContext(ctx, query, notes, time.Now().UnixMilli(), cardID, userID)
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
