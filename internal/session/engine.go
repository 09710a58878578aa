// Package session holds the per-topic learning-session engine: queue
// loading, next-card selection, grading and snapshot maintenance.
package session

import (
	"log/slog"
	"time"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/store"
)

// Scheduler computes the memory state that follows a grade.
type Scheduler interface {
	Next(prior card.MemoryState, rating card.Rating, now time.Time) (card.MemoryState, card.ReviewLogEntry)
}

// Limits are the session sizing knobs, read once at startup.
type Limits struct {
	// MaxLearnPerDay is the daily budget of first-time grades per user and topic
	MaxLearnPerDay int

	// MaxCardsToFetch caps each queue fetch
	MaxCardsToFetch int

	// RefetchThreshold is the remaining-card count at or below which a grade
	// reloads the snapshot instead of editing it locally
	RefetchThreshold int
}

// LimitsFromConfig extracts Limits from a validated config.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxLearnPerDay:   cfg.MaxLearnPerDay,
		MaxCardsToFetch:  cfg.MaxCardsToFetch,
		RefetchThreshold: cfg.RefetchThreshold,
	}
}

// Engine runs session operations against a store. It holds no per-session
// state and is safe for concurrent use.
type Engine struct {
	store  store.Store
	sched  Scheduler
	limits Limits
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone whose midnight resets the daily budget.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine returns an engine using UTC days, the wall clock and slog.Default.
func NewEngine(st store.Store, sched Scheduler, limits Limits, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		sched:  sched,
		limits: limits,
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// startOfDay returns local midnight of t in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}
