package session

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
)

// NumLeftToLearn returns how many new cards the user may still start today.
// A negative result means first reviews were logged past the budget and is
// reported as an invariant violation rather than clamped.
func (e *Engine) NumLeftToLearn(ctx context.Context, userID, topicID string, now time.Time) (int, error) {
	return e.numLeftToLearn(ctx, userID, topicID, now, nil)
}

// numLeftToLearn also charges the pending first reviews against the budget.
func (e *Engine) numLeftToLearn(ctx context.Context, userID, topicID string, now time.Time, pending []string) (int, error) {
	learned, err := e.store.CountFirstReviews(ctx, userID, topicID, startOfDay(now, e.loc), now, pending...)
	if err != nil {
		return 0, errors.NewStore("count first reviews", err)
	}

	left := e.limits.MaxLearnPerDay - learned
	if left < 0 {
		return 0, errors.NewInvariantViolation("daily new-card budget exceeded", map[string]any{
			"user_id":           userID,
			"topic_id":          topicID,
			"max_learn_per_day": e.limits.MaxLearnPerDay,
			"learned_today":     learned,
		})
	}
	return left, nil
}

// Load builds a fresh snapshot: due review cards, new candidates within the
// daily budget and the matching stats.
func (e *Engine) Load(ctx context.Context, userID, topicID string) (*card.TopicSnapshot, error) {
	return e.load(ctx, userID, topicID, nil)
}

// load is Load with pending first reviews: cards graded from New whose review
// log insert may still be in flight.
func (e *Engine) load(ctx context.Context, userID, topicID string, pending []string) (*card.TopicSnapshot, error) {
	start := time.Now()
	defer func() { loadDuration.Observe(time.Since(start).Seconds()) }()

	now := e.now()
	numLeft, err := e.numLeftToLearn(ctx, userID, topicID, now, pending)
	if err != nil {
		return nil, err
	}

	snap := &card.TopicSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		due, err := e.store.ListDueCards(gctx, userID, topicID, now, e.limits.MaxCardsToFetch)
		if err != nil {
			return errors.NewStore("list due cards", err)
		}
		snap.Review = due
		return nil
	})
	g.Go(func() error {
		questions, err := e.store.ListUnseenQuestions(gctx, userID, topicID, min(numLeft, e.limits.MaxCardsToFetch))
		if err != nil {
			return errors.NewStore("list unseen questions", err)
		}
		snap.New = make([]card.Flashcard, len(questions))
		for i, q := range questions {
			snap.New[i] = card.NewVirtual(q, now)
		}
		return nil
	})
	g.Go(func() error {
		stats, err := e.Stats(gctx, userID, topicID, numLeft, now)
		if err != nil {
			return err
		}
		snap.Stats = stats
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("session loaded",
		"user_id", userID,
		"topic_id", topicID,
		"new", len(snap.New),
		"review", len(snap.Review),
		"num_left_to_learn", numLeft,
		"total_due", snap.Stats.TotalDue,
	)
	return snap, nil
}
