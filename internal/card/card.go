package card

import "time"

// MemoryState holds the per-card scheduling parameters produced by the scheduler.
type MemoryState struct {
	// Stability is the interval in days at which recall probability drops to the target retention
	Stability float64 `json:"stability"`

	// Difficulty is the intrinsic difficulty estimate (higher is harder)
	Difficulty float64 `json:"difficulty"`

	// Due is when the card should next be shown
	Due time.Time `json:"due"`

	ElapsedDays   int `json:"elapsed_days"`
	ScheduledDays int `json:"scheduled_days"`
	LearningSteps int `json:"learning_steps"`
	Reps          int `json:"reps"`
	Lapses        int `json:"lapses"`

	State State `json:"state"`

	// LastReview is nil until the card has been graded once
	LastReview *time.Time `json:"last_review,omitempty"`
}

// NewMemoryState returns the initial state of a never-graded card, due at now.
func NewMemoryState(now time.Time) MemoryState {
	return MemoryState{
		Due:   now,
		State: New,
	}
}

// Flashcard is a question paired with the user's memory state for it.
// ID is empty until the first grade is persisted.
type Flashcard struct {
	ID       string      `json:"id,omitempty"`
	Notes    *string     `json:"notes,omitempty"`
	Memory   MemoryState `json:"memory"`
	Question Question    `json:"question"`
}

// IsVirtual reports whether the card exists only because its question has not
// been graded by this user yet.
func (f Flashcard) IsVirtual() bool {
	return f.ID == "" && f.Memory.State == New
}

// Key returns the identity used when comparing cards across queues: the card
// ID if persisted, otherwise the question ID.
func (f Flashcard) Key() string {
	if f.ID != "" {
		return f.ID
	}
	return f.Question.ID
}

// NewVirtual pairs a question with a freshly initialized memory state.
func NewVirtual(q Question, now time.Time) Flashcard {
	return Flashcard{
		Memory:   NewMemoryState(now),
		Question: q,
	}
}

// TopicStats summarizes how much work is due in a topic.
// TotalDue always equals LearningDue + ReviewDue + NewDue.
type TopicStats struct {
	Total       int `json:"total"`
	TotalDue    int `json:"total_due"`
	NewDue      int `json:"new_due"`
	LearningDue int `json:"learning_due"`
	ReviewDue   int `json:"review_due"`
}

// Consistent reports whether the due buckets add up to TotalDue and no count is negative.
func (s TopicStats) Consistent() bool {
	if s.Total < 0 || s.NewDue < 0 || s.LearningDue < 0 || s.ReviewDue < 0 {
		return false
	}
	return s.TotalDue == s.NewDue+s.LearningDue+s.ReviewDue
}

// TopicSnapshot is one consistent view of a user's session in a topic.
// New holds virtual cards; Review holds persisted cards that were due at
// fetch time, ordered by ascending difficulty.
type TopicSnapshot struct {
	New    []Flashcard `json:"new"`
	Review []Flashcard `json:"review"`
	Stats  TopicStats  `json:"stats"`
}

// Remaining returns the number of cards left in both queues.
func (s *TopicSnapshot) Remaining() int {
	return len(s.New) + len(s.Review)
}

// Find returns the card for questionID from either queue.
func (s *TopicSnapshot) Find(questionID string) (Flashcard, bool) {
	for _, fc := range s.New {
		if fc.Question.ID == questionID {
			return fc, true
		}
	}
	for _, fc := range s.Review {
		if fc.Question.ID == questionID {
			return fc, true
		}
	}
	return Flashcard{}, false
}

// ReviewLogEntry records one grading event. It is written once and never read
// back by the session engine.
type ReviewLogEntry struct {
	ID     string    `json:"id,omitempty"`
	CardID string    `json:"card_id,omitempty"`
	Rating Rating    `json:"rating"`
	Review time.Time `json:"review"`

	// Prior state of the card when it was graded
	State         State   `json:"state"`
	Stability     float64 `json:"stability"`
	Difficulty    float64 `json:"difficulty"`
	ElapsedDays   int     `json:"elapsed_days"`
	LastElapsed   int     `json:"last_elapsed_days"`
	ScheduledDays int     `json:"scheduled_days"`
	LearningSteps int     `json:"learning_steps"`

	// Due is the next due date assigned by this grade
	Due time.Time `json:"due"`
}

// Topic is a subject area grouping questions.
type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
