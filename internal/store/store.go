// Package store defines the data store the session engine reads from and
// writes to. Implementations live in internal/db (SQLite) and
// internal/pgstore (Postgres).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pensum-app/pensum/internal/card"
)

// ErrNotFound is returned by lookups and targeted updates that match no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by ImportTopic when the topic name is taken.
var ErrConflict = errors.New("already exists")

// Store is the persistence boundary of the session engine. All methods are
// safe for concurrent use. Implementations return driver errors wrapped with
// %w; the engine classifies them.
type Store interface {
	Reader
	Writer
}

// Reader holds the filtered/ordered/limited reads and exact counts.
type Reader interface {
	// GetTopic returns ErrNotFound if no topic has the id.
	GetTopic(ctx context.Context, topicID string) (*card.Topic, error)
	ListTopics(ctx context.Context) ([]card.Topic, error)

	// CountFirstReviews counts distinct cards of the user in the topic that
	// have a review log with prior state New and review time in [since, until].
	// pending names cards graded for the first time whose log row may not be
	// visible yet. The result counts the union, so a pending card whose row
	// already landed is counted once.
	CountFirstReviews(ctx context.Context, userID, topicID string, since, until time.Time, pending ...string) (int, error)

	// ListDueCards returns persisted non-New cards with due <= now, ordered by
	// ascending difficulty, at most limit rows.
	ListDueCards(ctx context.Context, userID, topicID string, now time.Time, limit int) ([]card.Flashcard, error)

	// ListUnseenQuestions returns topic questions the user has no card for, at most limit rows.
	ListUnseenQuestions(ctx context.Context, userID, topicID string, limit int) ([]card.Question, error)

	// CountQuestions counts all questions in the topic.
	CountQuestions(ctx context.Context, topicID string) (int, error)

	// CountDueCards counts the user's cards in the topic with due <= now and a state in states.
	CountDueCards(ctx context.Context, userID, topicID string, now time.Time, states ...card.State) (int, error)

	// CountUnseenQuestions counts topic questions the user has no card for.
	CountUnseenQuestions(ctx context.Context, userID, topicID string) (int, error)
}

// Writer holds upserts and inserts.
type Writer interface {
	// UpsertCard creates or updates the card keyed by (userID, questionID) and
	// returns its id. A new id is minted only when the row is created.
	UpsertCard(ctx context.Context, userID, questionID string, m card.MemoryState) (string, error)

	// InsertReviewLog appends a log entry for entry.CardID.
	InsertReviewLog(ctx context.Context, userID string, entry card.ReviewLogEntry) error

	// UpdateNotes sets the notes of the user's card. Returns ErrNotFound if the
	// card does not exist or belongs to another user.
	UpdateNotes(ctx context.Context, userID, cardID, notes string) error

	// ImportTopic stores a topic with its questions atomically. Returns
	// ErrConflict if a topic with the same name exists.
	ImportTopic(ctx context.Context, topic card.Topic, questions []card.Question) error
}
