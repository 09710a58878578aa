package session

import (
	"context"
	stderrors "errors"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/store"
)

// UpdateNotes stores notes on a persisted card and returns a copy of snap in
// which that card carries them. Virtual cards have nowhere to keep notes and
// are rejected.
func (e *Engine) UpdateNotes(ctx context.Context, userID string, snap *card.TopicSnapshot, fc card.Flashcard, notes string) (*card.TopicSnapshot, error) {
	if fc.IsVirtual() || fc.ID == "" {
		return nil, errors.NewNotImplemented("notes on a card that has never been graded")
	}
	if userID == "" {
		return nil, errors.NewUnauthenticated()
	}

	if err := e.store.UpdateNotes(ctx, userID, fc.ID, notes); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFound("card", fc.ID)
		}
		return nil, errors.NewStore("update notes", err)
	}

	return withNotes(snap, fc.ID, notes), nil
}

// withNotes returns a copy of snap where the card with cardID has notes set.
func withNotes(snap *card.TopicSnapshot, cardID, notes string) *card.TopicSnapshot {
	set := func(queue []card.Flashcard) []card.Flashcard {
		out := make([]card.Flashcard, len(queue))
		for i, fc := range queue {
			if fc.ID == cardID {
				fc.Notes = &notes
			}
			out[i] = fc
		}
		return out
	}
	return &card.TopicSnapshot{
		New:    set(snap.New),
		Review: set(snap.Review),
		Stats:  snap.Stats,
	}
}
