package session

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/store"
)

var testNow = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

// fakeStore serves canned rows and counts calls. Failures are injected by
// setting the matching *Err field.
type fakeStore struct {
	mu sync.Mutex

	topics       map[string]card.Topic
	due          []card.Flashcard
	unseen       []card.Question
	firstReviews int
	learningDue  int
	reviewDue    int

	upsertErr error
	logErr    error
	dueErr    error
	notesErr  error
	countErr  error

	// countDone, when set, holds InsertReviewLog until CountFirstReviews has
	// returned once.
	countDone chan struct{}
	countOnce sync.Once

	calls        map[string]int
	dueLimit     int
	newLimit     int
	firstSince   time.Time
	firstPending []string
	upserts    []card.MemoryState
	logs       []card.ReviewLogEntry
	notes      map[string]string
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		topics: map[string]card.Topic{"t1": {ID: "t1", Name: "Biology"}},
		calls:  make(map[string]int),
		notes:  make(map[string]string),
	}
}

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStore) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeStore) GetTopic(_ context.Context, topicID string) (*card.Topic, error) {
	f.hit("GetTopic")
	t, ok := f.topics[topicID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (f *fakeStore) ListTopics(context.Context) ([]card.Topic, error) {
	f.hit("ListTopics")
	out := make([]card.Topic, 0, len(f.topics))
	for _, t := range f.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CountFirstReviews adds firstReviews to the distinct cards with a logged
// New-state grade or a pending id.
func (f *fakeStore) CountFirstReviews(_ context.Context, _, _ string, since, _ time.Time, pending ...string) (int, error) {
	f.hit("CountFirstReviews")
	f.mu.Lock()
	f.firstSince = since
	f.firstPending = append([]string(nil), pending...)
	ids := make(map[string]bool)
	for _, e := range f.logs {
		if e.State == card.New {
			ids[e.CardID] = true
		}
	}
	for _, id := range pending {
		ids[id] = true
	}
	n := f.firstReviews + len(ids)
	f.mu.Unlock()

	if f.countDone != nil {
		f.countOnce.Do(func() { close(f.countDone) })
	}
	return n, nil
}

func (f *fakeStore) ListDueCards(_ context.Context, _, _ string, _ time.Time, limit int) ([]card.Flashcard, error) {
	f.hit("ListDueCards")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueLimit = limit
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	n := min(limit, len(f.due))
	return append([]card.Flashcard{}, f.due[:n]...), nil
}

func (f *fakeStore) ListUnseenQuestions(_ context.Context, _, _ string, limit int) ([]card.Question, error) {
	f.hit("ListUnseenQuestions")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newLimit = limit
	n := max(min(limit, len(f.unseen)), 0)
	return append([]card.Question{}, f.unseen[:n]...), nil
}

func (f *fakeStore) CountQuestions(context.Context, string) (int, error) {
	f.hit("CountQuestions")
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.due) + len(f.unseen), nil
}

func (f *fakeStore) CountDueCards(_ context.Context, _, _ string, _ time.Time, states ...card.State) (int, error) {
	f.hit("CountDueCards")
	if len(states) == 1 && states[0] == card.Review {
		return f.reviewDue, nil
	}
	return f.learningDue, nil
}

func (f *fakeStore) CountUnseenQuestions(context.Context, string, string) (int, error) {
	f.hit("CountUnseenQuestions")
	return len(f.unseen), nil
}

func (f *fakeStore) UpsertCard(_ context.Context, _, questionID string, m card.MemoryState) (string, error) {
	f.hit("UpsertCard")
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, m)
	return "card-" + questionID, nil
}

func (f *fakeStore) InsertReviewLog(_ context.Context, _ string, e card.ReviewLogEntry) error {
	f.hit("InsertReviewLog")
	if f.countDone != nil {
		<-f.countDone
	}
	if f.logErr != nil {
		return f.logErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, e)
	return nil
}

func (f *fakeStore) UpdateNotes(_ context.Context, _, cardID, notes string) error {
	f.hit("UpdateNotes")
	if f.notesErr != nil {
		return f.notesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[cardID] = notes
	return nil
}

func (f *fakeStore) ImportTopic(_ context.Context, topic card.Topic, _ []card.Question) error {
	f.hit("ImportTopic")
	f.topics[topic.ID] = topic
	return nil
}

// fakeScheduler moves every card to Review due a day later, except Again
// which moves it to Learning due in ten minutes.
type fakeScheduler struct{}

func (fakeScheduler) Next(prior card.MemoryState, rating card.Rating, now time.Time) (card.MemoryState, card.ReviewLogEntry) {
	next := prior
	next.Reps++
	next.LastReview = &now
	if rating == card.Again {
		next.State = card.Learning
		next.Due = now.Add(10 * time.Minute)
	} else {
		next.State = card.Review
		next.Due = now.Add(24 * time.Hour)
	}
	return next, card.ReviewLogEntry{
		Rating: rating,
		Review: now,
		State:  prior.State,
		Due:    next.Due,
	}
}

func newTestEngine(t *testing.T, st *fakeStore, limits Limits) *Engine {
	t.Helper()
	return NewEngine(st, fakeScheduler{}, limits,
		WithClock(func() time.Time { return testNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func question(id string) card.Question {
	return card.Question{ID: id, TopicID: "t1", Code: id, Text: "text " + id, Type: card.SingleChoice, Options: []card.Option{}}
}

func reviewCard(id string, difficulty float64, state card.State) card.Flashcard {
	last := testNow.Add(-48 * time.Hour)
	return card.Flashcard{
		ID: "card-" + id,
		Memory: card.MemoryState{
			Stability:  2,
			Difficulty: difficulty,
			Due:        testNow.Add(-time.Hour),
			Reps:       1,
			State:      state,
			LastReview: &last,
		},
		Question: question(id),
	}
}

func virtualCard(id string) card.Flashcard {
	return card.NewVirtual(question(id), testNow)
}
