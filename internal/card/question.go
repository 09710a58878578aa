package card

import "fmt"

// QuestionType is the closed set of question shapes. The engine never
// branches on it; it travels with the question for presentation layers.
type QuestionType string

const (
	SingleChoice   QuestionType = "single"
	MultipleChoice QuestionType = "multiple"
	Order          QuestionType = "order"
	Match          QuestionType = "match"
)

// ParseQuestionType validates a stored or imported type tag.
func ParseQuestionType(s string) (QuestionType, error) {
	switch t := QuestionType(s); t {
	case SingleChoice, MultipleChoice, Order, Match:
		return t, nil
	}
	return "", fmt.Errorf("unknown question type: %q", s)
}

// Question is an exam question in a topic.
type Question struct {
	ID      string       `json:"id"`
	TopicID string       `json:"topic_id"`
	Code    string       `json:"code"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`

	// Content and Context are optional extra material shown with the question
	Content *string `json:"content,omitempty"`
	Context *string `json:"context,omitempty"`

	OptionsTitle  *string `json:"options_title,omitempty"`
	OptionsPrefix *string `json:"options_prefix,omitempty"`

	Options []Option       `json:"options"`
	Pages   []MaterialPage `json:"pages,omitempty"`
}

// Option is one answer choice. Which fields are set depends on the question type:
// IsCorrect for choice questions, CorrectOrderIndex for order questions,
// Side and CorrectMatchID for match questions.
type Option struct {
	ID                string  `json:"id"`
	Text              string  `json:"text"`
	IsCorrect         *bool   `json:"is_correct,omitempty"`
	CorrectOrderIndex *int    `json:"correct_order_index,omitempty"`
	Side              *string `json:"side,omitempty"`
	CorrectMatchID    *string `json:"correct_match_id,omitempty"`
}

// MaterialPage is a page of learning material related to a question.
type MaterialPage struct {
	ID          string `json:"id"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	KeyConcepts string `json:"key_concepts"`
	MaterialURL string `json:"material_url,omitempty"`
}
