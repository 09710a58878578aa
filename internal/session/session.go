package session

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/store"
)

// Session is one user's working set in one topic. Reads see a complete
// snapshot at all times; grades, note updates and reloads are serialized and
// swap the snapshot wholesale on success.
type Session struct {
	engine  *Engine
	userID  string
	topicID string

	mu   sync.Mutex
	snap atomic.Pointer[card.TopicSnapshot]
}

// Open checks that the topic exists and loads the initial snapshot.
func (e *Engine) Open(ctx context.Context, userID, topicID string) (*Session, error) {
	if userID == "" {
		return nil, errors.NewUnauthenticated()
	}
	if _, err := e.store.GetTopic(ctx, topicID); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFound("topic", topicID)
		}
		return nil, errors.NewStore("get topic", err)
	}

	snap, err := e.Load(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}

	s := &Session{engine: e, userID: userID, topicID: topicID}
	s.snap.Store(snap)
	return s, nil
}

// UserID returns the session owner.
func (s *Session) UserID() string { return s.userID }

// TopicID returns the session topic.
func (s *Session) TopicID() string { return s.topicID }

// Snapshot returns the current snapshot. Callers must not modify it.
func (s *Session) Snapshot() *card.TopicSnapshot {
	return s.snap.Load()
}

// Next returns the card to present, or false when the session is complete.
func (s *Session) Next() (card.Flashcard, bool) {
	return SelectNext(s.snap.Load())
}

// Grade grades the queued card for questionID. On error the snapshot is left
// as it was, unless the engine returned a replacement with the error.
func (s *Session) Grade(ctx context.Context, questionID string, rating card.Rating) (*card.TopicSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	fc, ok := cur.Find(questionID)
	if !ok {
		return nil, errors.NewNotFound("card", questionID)
	}

	next, err := s.engine.Grade(ctx, s.userID, s.topicID, cur, fc, rating)
	if next != nil {
		s.snap.Store(next)
	}
	if err != nil {
		return nil, err
	}
	return next, nil
}

// UpdateNotes sets the notes of the queued card for questionID.
func (s *Session) UpdateNotes(ctx context.Context, questionID, notes string) (*card.TopicSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	fc, ok := cur.Find(questionID)
	if !ok {
		return nil, errors.NewNotFound("card", questionID)
	}

	next, err := s.engine.UpdateNotes(ctx, s.userID, cur, fc, notes)
	if err != nil {
		return nil, err
	}
	s.snap.Store(next)
	return next, nil
}

// Reload replaces the snapshot with a fresh one from the store.
func (s *Session) Reload(ctx context.Context) (*card.TopicSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.engine.Load(ctx, s.userID, s.topicID)
	if err != nil {
		return nil, err
	}
	s.snap.Store(next)
	return next, nil
}
