package ops

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/store"
)

// MaxImportBytes caps the size of a question-bank file.
const MaxImportBytes = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation. When Errors is
// non-empty nothing was imported.
type ImportOutput struct {
	TopicID  string        `json:"topic_id,omitempty"`
	Topic    string        `json:"topic"`
	Imported int           `json:"imported"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one problem in a question-bank file.
type ImportError struct {
	Question int    `json:"question"` // 1-based index, 0 for file-level problems
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// bankFile is the on-disk question-bank format.
type bankFile struct {
	Topic     string         `json:"topic" validate:"required,max=200"`
	Questions []bankQuestion `json:"questions" validate:"required,min=1,dive"`
}

type bankQuestion struct {
	Code          string       `json:"code" validate:"required,max=64"`
	Text          string       `json:"text" validate:"required"`
	Type          string       `json:"type" validate:"required,oneof=single multiple order match"`
	Content       *string      `json:"content"`
	Context       *string      `json:"context"`
	OptionsTitle  *string      `json:"options_title"`
	OptionsPrefix *string      `json:"options_prefix"`
	Options       []bankOption `json:"options" validate:"required,min=1,dive"`
	Pages         []bankPage   `json:"pages" validate:"dive"`
}

type bankOption struct {
	// Key names the option within its question so match pairs can refer to it.
	Key               string  `json:"key"`
	Text              string  `json:"text" validate:"required"`
	IsCorrect         *bool   `json:"is_correct"`
	CorrectOrderIndex *int    `json:"correct_order_index" validate:"omitempty,min=0"`
	Side              *string `json:"side" validate:"omitempty,oneof=left right"`
	Match             *string `json:"match"`
}

type bankPage struct {
	Number      int    `json:"number" validate:"min=1"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	KeyConcepts string `json:"key_concepts"`
	MaterialURL string `json:"material_url" validate:"omitempty,url"`
}

var validate = validator.New()

// Import reads a question-bank JSON file and stores it as a new topic.
// The file is checked completely before anything is written.
func Import(ctx context.Context, st store.Store, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if err := ValidateImportPath(input.Path, cfg); err != nil {
		return nil, err
	}

	f, err := openNoFollow(input.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bank bankFile
	dec := json.NewDecoder(io.LimitReader(f, MaxImportBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bank); err != nil {
		return &ImportOutput{Errors: []ImportError{{
			Code:    "PARSE_ERROR",
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}}}, nil
	}

	bank.Topic = strings.TrimSpace(bank.Topic)
	if problems := checkBank(&bank); len(problems) > 0 {
		return &ImportOutput{Topic: bank.Topic, Errors: problems}, nil
	}

	topic, questions := buildTopic(&bank, time.Now())
	if err := st.ImportTopic(ctx, topic, questions); err != nil {
		if stderrors.Is(err, store.ErrConflict) {
			return nil, errors.NewConflict("topic", topic.Name)
		}
		return nil, errors.NewStore("import topic", err)
	}

	return &ImportOutput{
		TopicID:  topic.ID,
		Topic:    topic.Name,
		Imported: len(questions),
		Errors:   []ImportError{},
	}, nil
}

// checkBank runs struct validation and the per-type answer rules.
func checkBank(bank *bankFile) []ImportError {
	var problems []ImportError

	if err := validate.Struct(bank); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return []ImportError{{Code: "INVALID_FILE", Message: err.Error()}}
		}
		for _, fe := range verrs {
			problems = append(problems, ImportError{
				Question: questionIndex(fe.Namespace()),
				Code:     "INVALID_FIELD",
				Message:  fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()),
			})
		}
		return problems
	}

	codes := make(map[string]int, len(bank.Questions))
	for i, q := range bank.Questions {
		n := i + 1
		if prev, dup := codes[q.Code]; dup {
			problems = append(problems, ImportError{
				Question: n,
				Code:     "DUPLICATE_CODE",
				Message:  fmt.Sprintf("code %q already used by question %d", q.Code, prev),
			})
		}
		codes[q.Code] = n

		if msg := checkAnswers(q); msg != "" {
			problems = append(problems, ImportError{Question: n, Code: "INVALID_ANSWER", Message: msg})
		}
	}
	return problems
}

// checkAnswers enforces that each option carries the answer field its
// question type needs.
func checkAnswers(q bankQuestion) string {
	switch card.QuestionType(q.Type) {
	case card.SingleChoice, card.MultipleChoice:
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect == nil {
				return "every option needs is_correct"
			}
			if *o.IsCorrect {
				correct++
			}
		}
		if q.Type == string(card.SingleChoice) && correct != 1 {
			return fmt.Sprintf("single choice needs exactly one correct option, got %d", correct)
		}
		if correct == 0 {
			return "multiple choice needs at least one correct option"
		}

	case card.Order:
		seen := make(map[int]bool, len(q.Options))
		for _, o := range q.Options {
			if o.CorrectOrderIndex == nil {
				return "every option needs correct_order_index"
			}
			if seen[*o.CorrectOrderIndex] {
				return fmt.Sprintf("correct_order_index %d used twice", *o.CorrectOrderIndex)
			}
			seen[*o.CorrectOrderIndex] = true
		}

	case card.Match:
		keys := make(map[string]string, len(q.Options))
		for _, o := range q.Options {
			if o.Key == "" || o.Side == nil {
				return "every match option needs key and side"
			}
			keys[o.Key] = *o.Side
		}
		for _, o := range q.Options {
			if o.Match == nil {
				continue
			}
			side, ok := keys[*o.Match]
			if !ok {
				return fmt.Sprintf("option %q matches unknown key %q", o.Key, *o.Match)
			}
			if side == *o.Side {
				return fmt.Sprintf("option %q matches an option on the same side", o.Key)
			}
		}
	}
	return ""
}

// buildTopic mints ids and converts the bank into store types. Pages with
// the same number share one id across the topic.
func buildTopic(bank *bankFile, now time.Time) (card.Topic, []card.Question) {
	topic := card.Topic{ID: uuid.NewString(), Name: bank.Topic, CreatedAt: now}
	pageIDs := make(map[int]string)

	questions := make([]card.Question, 0, len(bank.Questions))
	for _, bq := range bank.Questions {
		q := card.Question{
			ID:            uuid.NewString(),
			TopicID:       topic.ID,
			Code:          bq.Code,
			Text:          bq.Text,
			Type:          card.QuestionType(bq.Type),
			Content:       bq.Content,
			Context:       bq.Context,
			OptionsTitle:  bq.OptionsTitle,
			OptionsPrefix: bq.OptionsPrefix,
			Options:       make([]card.Option, 0, len(bq.Options)),
		}

		optionIDs := make(map[string]string, len(bq.Options))
		for _, bo := range bq.Options {
			id := uuid.NewString()
			if bo.Key != "" {
				optionIDs[bo.Key] = id
			}
			q.Options = append(q.Options, card.Option{
				ID:                id,
				Text:              bo.Text,
				IsCorrect:         bo.IsCorrect,
				CorrectOrderIndex: bo.CorrectOrderIndex,
				Side:              bo.Side,
			})
		}
		for i, bo := range bq.Options {
			if bo.Match != nil {
				matchID := optionIDs[*bo.Match]
				q.Options[i].CorrectMatchID = &matchID
			}
		}

		for _, bp := range bq.Pages {
			id, ok := pageIDs[bp.Number]
			if !ok {
				id = uuid.NewString()
				pageIDs[bp.Number] = id
			}
			q.Pages = append(q.Pages, card.MaterialPage{
				ID:          id,
				Number:      bp.Number,
				Title:       bp.Title,
				Description: bp.Description,
				KeyConcepts: bp.KeyConcepts,
				MaterialURL: bp.MaterialURL,
			})
		}

		questions = append(questions, q)
	}
	return topic, questions
}

// questionIndex extracts the 1-based question number from a validator
// namespace like "bankFile.Questions[2].Options[0].Text".
func questionIndex(namespace string) int {
	_, rest, ok := strings.Cut(namespace, "Questions[")
	if !ok {
		return 0
	}
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(rest[:end], "%d", &n); err != nil {
		return 0
	}
	return n + 1
}
