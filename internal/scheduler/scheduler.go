// Package scheduler adapts the FSRS memory model to pensum's card types.
package scheduler

import (
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs/v3"

	"github.com/pensum-app/pensum/internal/card"
)

// FSRS is the scheduling oracle. It is a pure function of its inputs apart
// from interval fuzzing and is safe for concurrent use.
type FSRS struct {
	f *fsrs.FSRS
}

// Option tweaks the FSRS parameters before the scheduler is built.
type Option func(*fsrs.Parameters)

// WithoutFuzz disables interval fuzzing so due dates are reproducible.
func WithoutFuzz() Option {
	return func(p *fsrs.Parameters) { p.EnableFuzz = false }
}

// New returns a scheduler with default weights, fuzzing and short-term
// scheduling enabled.
func New(opts ...Option) *FSRS {
	params := fsrs.DefaultParam()
	params.EnableFuzz = true
	params.EnableShortTerm = true
	for _, opt := range opts {
		opt(&params)
	}
	return &FSRS{f: fsrs.NewFSRS(params)}
}

// Next grades a card's memory state at now and returns the posterior state and
// the log entry describing the transition. The input is not modified.
func (s *FSRS) Next(prior card.MemoryState, rating card.Rating, now time.Time) (card.MemoryState, card.ReviewLogEntry) {
	info := s.f.Repeat(toFSRS(prior), now)[fsrs.Rating(rating)]
	next := fromFSRS(info.Card)
	next.LearningSteps = learningSteps(prior, next.State)

	lastElapsed := 0
	if prior.LastReview != nil {
		lastElapsed = prior.ElapsedDays
	}

	entry := card.ReviewLogEntry{
		Rating:        rating,
		Review:        now,
		State:         prior.State,
		Stability:     prior.Stability,
		Difficulty:    prior.Difficulty,
		ElapsedDays:   int(info.ReviewLog.ElapsedDays),
		LastElapsed:   lastElapsed,
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
		LearningSteps: prior.LearningSteps,
		Due:           next.Due,
	}
	return next, entry
}

// learningSteps counts consecutive short-term steps: it advances while the card
// stays in (re)learning and resets once it graduates to review.
func learningSteps(prior card.MemoryState, next card.State) int {
	switch next {
	case card.Learning, card.Relearning:
		if prior.State == next {
			return prior.LearningSteps + 1
		}
		return 0
	default:
		return 0
	}
}

func toFSRS(m card.MemoryState) fsrs.Card {
	c := fsrs.Card{
		Due:           m.Due,
		Stability:     m.Stability,
		Difficulty:    m.Difficulty,
		ElapsedDays:   uint64(max(m.ElapsedDays, 0)),
		ScheduledDays: uint64(max(m.ScheduledDays, 0)),
		Reps:          uint64(max(m.Reps, 0)),
		Lapses:        uint64(max(m.Lapses, 0)),
		State:         fsrs.State(m.State),
	}
	if m.LastReview != nil {
		c.LastReview = *m.LastReview
	}
	return c
}

func fromFSRS(c fsrs.Card) card.MemoryState {
	m := card.MemoryState{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		Due:           c.Due,
		ElapsedDays:   int(c.ElapsedDays),
		ScheduledDays: int(c.ScheduledDays),
		Reps:          int(c.Reps),
		Lapses:        int(c.Lapses),
		State:         card.State(c.State),
	}
	if !c.LastReview.IsZero() {
		last := c.LastReview
		m.LastReview = &last
	}
	return m
}
