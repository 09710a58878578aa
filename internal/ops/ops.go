package ops

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
)

// CardView is a card as shown to a learner. Correct answers stay in the
// embedded question so clients can reveal them after grading.
type CardView struct {
	QuestionID string        `json:"question_id"`
	CardID     string        `json:"card_id,omitempty"`
	Virtual    bool          `json:"virtual"`
	State      string        `json:"state"`
	Due        time.Time     `json:"due"`
	Reps       int           `json:"reps"`
	Lapses     int           `json:"lapses"`
	Notes      *string       `json:"notes,omitempty"`
	NotesHTML  string        `json:"notes_html,omitempty"`
	Question   card.Question `json:"question"`
}

// NewCardView builds the view of fc, rendering notes from markdown.
func NewCardView(fc card.Flashcard) CardView {
	v := CardView{
		QuestionID: fc.Question.ID,
		CardID:     fc.ID,
		Virtual:    fc.IsVirtual(),
		State:      fc.Memory.State.String(),
		Due:        fc.Memory.Due,
		Reps:       fc.Memory.Reps,
		Lapses:     fc.Memory.Lapses,
		Notes:      fc.Notes,
		Question:   fc.Question,
	}
	if fc.Notes != nil && *fc.Notes != "" {
		v.NotesHTML = string(RenderMarkdown(*fc.Notes))
	}
	return v
}

// RenderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is omitted.
func RenderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// SessionInput addresses one user's session in one topic.
type SessionInput struct {
	UserID  string `json:"user_id"`
	TopicID string `json:"topic_id"`
}

// validate trims both ids; a missing user is UNAUTHENTICATED, a missing
// topic INVALID_REQUEST.
func (in *SessionInput) validate() error {
	in.UserID = strings.TrimSpace(in.UserID)
	in.TopicID = strings.TrimSpace(in.TopicID)
	if in.UserID == "" {
		return errors.NewUnauthenticated()
	}
	if in.TopicID == "" {
		return errors.NewInvalidRequest("topic_id is required")
	}
	return nil
}
