package session

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
)

// Stats counts the due work in a topic. newDue never exceeds numLeftToLearn.
// The four counts are independent and run concurrently.
func (e *Engine) Stats(ctx context.Context, userID, topicID string, numLeftToLearn int, now time.Time) (card.TopicStats, error) {
	var total, learning, review, unseen int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := e.store.CountQuestions(gctx, topicID)
		if err != nil {
			return errors.NewStore("count questions", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		n, err := e.store.CountDueCards(gctx, userID, topicID, now, card.Learning, card.Relearning)
		if err != nil {
			return errors.NewStore("count learning due", err)
		}
		learning = n
		return nil
	})
	g.Go(func() error {
		n, err := e.store.CountDueCards(gctx, userID, topicID, now, card.Review)
		if err != nil {
			return errors.NewStore("count review due", err)
		}
		review = n
		return nil
	})
	g.Go(func() error {
		n, err := e.store.CountUnseenQuestions(gctx, userID, topicID)
		if err != nil {
			return errors.NewStore("count unseen questions", err)
		}
		unseen = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return card.TopicStats{}, err
	}

	newDue := min(numLeftToLearn, unseen)
	return card.TopicStats{
		Total:       total,
		TotalDue:    learning + review + newDue,
		NewDue:      newDue,
		LearningDue: learning,
		ReviewDue:   review,
	}, nil
}
