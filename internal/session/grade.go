package session

import (
	"context"
	"sync"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
)

// Grade records rating for fc and returns the snapshot that should replace
// snap. snap itself is never modified.
//
// The card upsert runs first and aborts the grade on failure. The review log
// insert and the snapshot update then run concurrently. If the log insert
// fails the card stays upserted, the error is returned and the computed
// snapshot is discarded. If only the refetch fails the grade is committed:
// Grade returns the error together with snap minus the graded card, so the
// caller never regrades it from its old memory state.
func (e *Engine) Grade(ctx context.Context, userID, topicID string, snap *card.TopicSnapshot, fc card.Flashcard, rating card.Rating) (*card.TopicSnapshot, error) {
	if userID == "" {
		return nil, errors.NewUnauthenticated()
	}
	if !rating.Valid() {
		return nil, errors.NewInvalidRequest("rating must be one of: again, hard, good, easy")
	}

	now := e.now()
	next, entry := e.sched.Next(fc.Memory, rating, now)

	cardID, err := e.store.UpsertCard(ctx, userID, fc.Question.ID, next)
	if err != nil {
		gradeFailures.WithLabelValues(stageUpsert).Inc()
		return nil, errors.NewStore("upsert card", err)
	}
	entry.CardID = cardID

	var (
		wg      sync.WaitGroup
		logErr  error
		mutErr  error
		updated *card.TopicSnapshot
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := e.store.InsertReviewLog(ctx, userID, entry); err != nil {
			logErr = errors.NewStore("insert review log", err)
		}
	}()
	go func() {
		defer wg.Done()
		updated, mutErr = e.mutate(ctx, userID, topicID, snap, fc, cardID)
	}()
	wg.Wait()

	if logErr != nil {
		gradeFailures.WithLabelValues(stageLog).Inc()
		e.logger.Warn("review log insert failed after card upsert",
			"user_id", userID,
			"topic_id", topicID,
			"card_id", cardID,
			"question_id", fc.Question.ID,
			"error", logErr,
		)
		return nil, logErr
	}
	if mutErr != nil {
		gradeFailures.WithLabelValues(stageMutate).Inc()
		e.logger.Warn("session refetch failed after grade",
			"user_id", userID,
			"topic_id", topicID,
			"card_id", cardID,
			"question_id", fc.Question.ID,
			"error", mutErr,
		)
		return removeGraded(snap, fc.Question.ID), mutErr
	}

	gradesTotal.WithLabelValues(rating.String()).Inc()
	e.logger.Debug("card graded",
		"user_id", userID,
		"topic_id", topicID,
		"card_id", cardID,
		"rating", rating.String(),
		"state", next.State.String(),
		"due", next.Due,
	)
	return updated, nil
}
