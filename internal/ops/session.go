package ops

import (
	"context"
	"strings"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/session"
)

// SessionOutput describes a session after an operation: what is left and
// what to show next. Next is nil once both queues are empty.
type SessionOutput struct {
	TopicID string          `json:"topic_id"`
	Stats   card.TopicStats `json:"stats"`
	New     int             `json:"new"`
	Review  int             `json:"review"`
	Done    bool            `json:"done"`
	Next    *CardView       `json:"next,omitempty"`
}

func newSessionOutput(topicID string, snap *card.TopicSnapshot) *SessionOutput {
	out := &SessionOutput{
		TopicID: topicID,
		Stats:   snap.Stats,
		New:     len(snap.New),
		Review:  len(snap.Review),
	}
	if fc, ok := session.SelectNext(snap); ok {
		v := NewCardView(fc)
		out.Next = &v
	} else {
		out.Done = true
	}
	return out
}

// LoadSession (re)opens the session with a fresh snapshot.
func LoadSession(ctx context.Context, reg *session.Registry, input SessionInput) (*SessionOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	s, err := reg.Open(ctx, input.UserID, input.TopicID)
	if err != nil {
		return nil, err
	}
	return newSessionOutput(input.TopicID, s.Snapshot()), nil
}

// NextCard returns the card to present, opening the session if needed.
func NextCard(ctx context.Context, reg *session.Registry, input SessionInput) (*SessionOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	s, err := reg.Get(ctx, input.UserID, input.TopicID)
	if err != nil {
		return nil, err
	}
	return newSessionOutput(input.TopicID, s.Snapshot()), nil
}

// GradeInput contains parameters for the GradeCard operation.
type GradeInput struct {
	SessionInput
	QuestionID string `json:"question_id"`
	Rating     string `json:"rating"` // again|hard|good|easy or 1-4
}

// GradeOutput is the session after the grade plus what was graded.
type GradeOutput struct {
	SessionOutput
	Graded string `json:"graded"`
	Rating string `json:"rating"`
}

// GradeCard grades a queued card. An empty QuestionID grades the card
// SelectNext would present.
func GradeCard(ctx context.Context, reg *session.Registry, input GradeInput) (*GradeOutput, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	rating, err := card.ParseRating(input.Rating)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	s, err := reg.Get(ctx, input.UserID, input.TopicID)
	if err != nil {
		return nil, err
	}

	questionID := strings.TrimSpace(input.QuestionID)
	if questionID == "" {
		fc, ok := s.Next()
		if !ok {
			return nil, errors.NewInvalidRequest("session is complete; nothing to grade")
		}
		questionID = fc.Question.ID
	}

	snap, err := s.Grade(ctx, questionID, rating)
	if err != nil {
		return nil, err
	}
	return &GradeOutput{
		SessionOutput: *newSessionOutput(input.TopicID, snap),
		Graded:        questionID,
		Rating:        rating.String(),
	}, nil
}

// NotesInput contains parameters for the UpdateNotes operation.
type NotesInput struct {
	SessionInput
	QuestionID string `json:"question_id"`
	Notes      string `json:"notes"`
}

// UpdateNotes sets the notes of a queued, already graded card.
func UpdateNotes(ctx context.Context, reg *session.Registry, input NotesInput) (*CardView, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	questionID := strings.TrimSpace(input.QuestionID)
	if questionID == "" {
		return nil, errors.NewInvalidRequest("question_id is required")
	}

	s, err := reg.Get(ctx, input.UserID, input.TopicID)
	if err != nil {
		return nil, err
	}
	snap, err := s.UpdateNotes(ctx, questionID, input.Notes)
	if err != nil {
		return nil, err
	}

	fc, _ := snap.Find(questionID)
	v := NewCardView(fc)
	return &v, nil
}

// SessionStats recomputes stats from the store without touching the session.
func SessionStats(ctx context.Context, engine *session.Engine, input SessionInput) (*card.TopicStats, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	now := engine.Now()
	left, err := engine.NumLeftToLearn(ctx, input.UserID, input.TopicID, now)
	if err != nil {
		return nil, err
	}
	stats, err := engine.Stats(ctx, input.UserID, input.TopicID, left, now)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
