package session

import (
	"context"

	"github.com/pensum-app/pensum/internal/card"
)

// mutate produces the snapshot that follows grading graded. remaining is
// counted before the graded card is removed: at or below the refetch
// threshold the snapshot is rebuilt from the store, above it the card is
// dropped locally and its due bucket decremented.
//
// The rebuild runs while the review log insert for graded may be in flight.
// When graded was New, cardID is charged to the daily budget as a pending
// first review so the fresh New queue cannot overshoot it.
func (e *Engine) mutate(ctx context.Context, userID, topicID string, snap *card.TopicSnapshot, graded card.Flashcard, cardID string) (*card.TopicSnapshot, error) {
	remaining := snap.Remaining()
	if remaining <= e.limits.RefetchThreshold {
		sessionMutations.WithLabelValues(modeRefetch).Inc()
		e.logger.Debug("refetching session",
			"user_id", userID,
			"topic_id", topicID,
			"remaining", remaining,
			"threshold", e.limits.RefetchThreshold,
		)
		var pending []string
		if graded.Memory.State == card.New {
			pending = []string{cardID}
		}
		return e.load(ctx, userID, topicID, pending)
	}

	sessionMutations.WithLabelValues(modeLocal).Inc()
	return removeGraded(snap, graded.Question.ID), nil
}

// removeGraded returns a copy of snap without the card for questionID.
// Counts never go below zero and TotalDue moves with the bucket.
// Total is the topic-wide question count and does not change.
// An unknown questionID returns snap unchanged.
func removeGraded(snap *card.TopicSnapshot, questionID string) *card.TopicSnapshot {
	newQueue, removedNew, okNew := without(snap.New, questionID)
	reviewQueue, removedReview, okReview := without(snap.Review, questionID)

	var removed card.Flashcard
	switch {
	case okNew:
		removed = removedNew
	case okReview:
		removed = removedReview
	default:
		return snap
	}

	stats := snap.Stats
	var bucket *int
	switch removed.Memory.State {
	case card.New:
		bucket = &stats.NewDue
	case card.Learning, card.Relearning:
		bucket = &stats.LearningDue
	case card.Review:
		bucket = &stats.ReviewDue
	}
	if bucket != nil && *bucket > 0 {
		*bucket--
		stats.TotalDue = max(stats.TotalDue-1, 0)
	}

	return &card.TopicSnapshot{
		New:    newQueue,
		Review: reviewQueue,
		Stats:  stats,
	}
}

// without returns a new slice omitting the first card for questionID.
// When no card matches, the input slice is returned as is.
func without(queue []card.Flashcard, questionID string) ([]card.Flashcard, card.Flashcard, bool) {
	for i, fc := range queue {
		if fc.Question.ID != questionID {
			continue
		}
		out := make([]card.Flashcard, 0, len(queue)-1)
		out = append(out, queue[:i]...)
		out = append(out, queue[i+1:]...)
		return out, fc, true
	}
	return queue, card.Flashcard{}, false
}
