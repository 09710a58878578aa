package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/store"
)

// questionColumns must stay in sync with newQuestionScan.
const questionColumns = `q.id, q.topic_id, q.code, q.question_text, q.question_type,
			q.content, q.context, q.options_title, q.options_prefix`

// questionScan holds scan targets for questionColumns.
type questionScan struct {
	q             card.Question
	qType         string
	content       sql.NullString
	context       sql.NullString
	optionsTitle  sql.NullString
	optionsPrefix sql.NullString
}

func newQuestionScan() (*questionScan, []any) {
	s := &questionScan{}
	return s, []any{
		&s.q.ID, &s.q.TopicID, &s.q.Code, &s.q.Text, &s.qType,
		&s.content, &s.context, &s.optionsTitle, &s.optionsPrefix,
	}
}

func (s *questionScan) question() card.Question {
	q := s.q
	q.Type = card.QuestionType(s.qType)
	q.Content = fromNullString(s.content)
	q.Context = fromNullString(s.context)
	q.OptionsTitle = fromNullString(s.optionsTitle)
	q.OptionsPrefix = fromNullString(s.optionsPrefix)
	q.Options = []card.Option{}
	return q
}

// ListUnseenQuestions returns topic questions the user has never graded.
func (s *Store) ListUnseenQuestions(ctx context.Context, userID, topicID string, limit int) ([]card.Question, error) {
	if limit <= 0 {
		return []card.Question{}, nil
	}

	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		WHERE q.topic_id = ?
			AND NOT EXISTS (
				SELECT 1 FROM cards c WHERE c.question_id = q.id AND c.user_id = ?
			)
		ORDER BY q.code ASC, q.id ASC
		LIMIT ?
	`

	rows, err := s.conn.QueryContext(ctx, query, topicID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unseen questions: %w", err)
	}
	defer rows.Close()

	questions := make([]card.Question, 0)
	for rows.Next() {
		scan, dest := newQuestionScan()
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, scan.question())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unseen questions: %w", err)
	}

	ptrs := make([]*card.Question, len(questions))
	for i := range questions {
		ptrs[i] = &questions[i]
	}
	if err := hydrateQuestions(ctx, s.conn, ptrs); err != nil {
		return nil, err
	}
	return questions, nil
}

// CountQuestions counts all questions in a topic.
func (s *Store) CountQuestions(ctx context.Context, topicID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE topic_id = ?`, topicID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

// CountUnseenQuestions counts topic questions the user has no card for.
func (s *Store) CountUnseenQuestions(ctx context.Context, userID, topicID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM questions q
		WHERE q.topic_id = ?
			AND NOT EXISTS (
				SELECT 1 FROM cards c WHERE c.question_id = q.id AND c.user_id = ?
			)
	`

	var n int
	if err := s.conn.QueryRowContext(ctx, query, topicID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unseen questions: %w", err)
	}
	return n, nil
}

// hydrateQuestions loads options and material pages for the given questions in place.
func hydrateQuestions(ctx context.Context, q querier, questions []*card.Question) error {
	if len(questions) == 0 {
		return nil
	}

	byID := make(map[string]*card.Question, len(questions))
	args := make([]any, 0, len(questions))
	for _, question := range questions {
		if question.Options == nil {
			question.Options = []card.Option{}
		}
		if _, seen := byID[question.ID]; !seen {
			args = append(args, question.ID)
		}
		byID[question.ID] = question
	}
	in := placeholders(len(args))

	optRows, err := q.QueryContext(ctx, `
		SELECT question_id, id, option_text, is_correct, correct_order_index, side, correct_match_id
		FROM options
		WHERE question_id IN (`+in+`)
		ORDER BY question_id, position ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	for optRows.Next() {
		var (
			questionID string
			o          card.Option
			isCorrect  sql.NullBool
			orderIndex sql.NullInt64
			side       sql.NullString
			matchID    sql.NullString
		)
		if err := optRows.Scan(&questionID, &o.ID, &o.Text, &isCorrect, &orderIndex, &side, &matchID); err != nil {
			optRows.Close()
			return fmt.Errorf("scan option: %w", err)
		}
		o.IsCorrect = fromNullBool(isCorrect)
		o.CorrectOrderIndex = fromNullInt(orderIndex)
		o.Side = fromNullString(side)
		o.CorrectMatchID = fromNullString(matchID)
		byID[questionID].Options = append(byID[questionID].Options, o)
	}
	if err := optRows.Err(); err != nil {
		optRows.Close()
		return fmt.Errorf("load options: %w", err)
	}
	optRows.Close()

	pageRows, err := q.QueryContext(ctx, `
		SELECT qp.question_id, p.id, p.number, p.title, p.description, p.key_concepts, p.material_url
		FROM question_pages qp
		JOIN material_pages p ON p.id = qp.page_id
		WHERE qp.question_id IN (`+in+`)
		ORDER BY qp.question_id, p.number ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	defer pageRows.Close()
	for pageRows.Next() {
		var (
			questionID string
			p          card.MaterialPage
			url        sql.NullString
		)
		if err := pageRows.Scan(&questionID, &p.ID, &p.Number, &p.Title, &p.Description, &p.KeyConcepts, &url); err != nil {
			return fmt.Errorf("scan page: %w", err)
		}
		if url.Valid {
			p.MaterialURL = url.String
		}
		byID[questionID].Pages = append(byID[questionID].Pages, p)
	}
	if err := pageRows.Err(); err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	return nil
}

// ImportTopic inserts a topic and its questions in one transaction.
// Material pages shared between questions are inserted once.
func (s *Store) ImportTopic(ctx context.Context, topic card.Topic, questions []card.Question) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import topic: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	createdAt := topic.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO topics (id, name, created_at) VALUES (?, ?, ?)`,
		topic.ID, topic.Name, toMillis(createdAt),
	); err != nil {
		if isUniqueConstraintError(err) {
			err = store.ErrConflict
			return err
		}
		return fmt.Errorf("insert topic: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, q := range questions {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO questions (
				id, topic_id, code, question_text, question_type,
				content, context, options_title, options_prefix, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, topic.ID, q.Code, q.Text, string(q.Type),
			toNullString(q.Content), toNullString(q.Context),
			toNullString(q.OptionsTitle), toNullString(q.OptionsPrefix), now,
		); err != nil {
			return fmt.Errorf("insert question %s: %w", q.Code, err)
		}

		for i, o := range q.Options {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO options (
					id, question_id, position, option_text, is_correct,
					correct_order_index, side, correct_match_id
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				o.ID, q.ID, i, o.Text, toNullBool(o.IsCorrect),
				toNullInt(o.CorrectOrderIndex), toNullString(o.Side), toNullString(o.CorrectMatchID),
			); err != nil {
				return fmt.Errorf("insert option for %s: %w", q.Code, err)
			}
		}

		for _, p := range q.Pages {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO material_pages (id, number, title, description, key_concepts, material_url)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO NOTHING`,
				p.ID, p.Number, p.Title, p.Description, p.KeyConcepts, sql.NullString{String: p.MaterialURL, Valid: p.MaterialURL != ""},
			); err != nil {
				return fmt.Errorf("insert page %d: %w", p.Number, err)
			}
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO question_pages (question_id, page_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				q.ID, p.ID,
			); err != nil {
				return fmt.Errorf("link page %d: %w", p.Number, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("import topic: %w", err)
	}
	return nil
}
