package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/store"
)

const questionColumns = `q.id, q.topic_id, q.code, q.question_text, q.question_type,
		q.content, q.context, q.options_title, q.options_prefix`

func questionDest(q *card.Question) []any {
	return []any{
		&q.ID, &q.TopicID, &q.Code, &q.Text, (*string)(&q.Type),
		&q.Content, &q.Context, &q.OptionsTitle, &q.OptionsPrefix,
	}
}

func (s *Store) GetTopic(ctx context.Context, topicID string) (*card.Topic, error) {
	t := &card.Topic{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM topics WHERE id = $1`, topicID,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *Store) ListTopics(ctx context.Context) ([]card.Topic, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM topics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	topics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (card.Topic, error) {
		var t card.Topic
		err := row.Scan(&t.ID, &t.Name, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

func (s *Store) CountFirstReviews(ctx context.Context, userID, topicID string, since, until time.Time, pending ...string) (int, error) {
	if pending == nil {
		pending = []string{}
	}

	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT l.card_id
			FROM review_logs l
			JOIN cards c ON c.id = l.card_id
			JOIN questions q ON q.id = c.question_id
			WHERE l.user_id = $1 AND q.topic_id = $2 AND l.state = $3
				AND l.review BETWEEN $4 AND $5
			UNION
			SELECT unnest($6::text[])
		) ids`,
		userID, topicID, int(card.New), since, until, pending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count first reviews: %w", err)
	}
	return n, nil
}

func (s *Store) ListDueCards(ctx context.Context, userID, topicID string, now time.Time, limit int) ([]card.Flashcard, error) {
	if limit <= 0 {
		return []card.Flashcard{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.notes, c.stability, c.difficulty, c.due, c.elapsed_days,
			c.scheduled_days, c.learning_steps, c.reps, c.lapses, c.state, c.last_review,
			`+questionColumns+`
		FROM cards c
		JOIN questions q ON q.id = c.question_id
		WHERE c.user_id = $1 AND q.topic_id = $2 AND c.state <> $3 AND c.due <= $4
		ORDER BY c.difficulty ASC, c.id ASC
		LIMIT $5`,
		userID, topicID, int(card.New), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (card.Flashcard, error) {
		var (
			fc    card.Flashcard
			state int
		)
		dest := []any{
			&fc.ID, &fc.Notes, &fc.Memory.Stability, &fc.Memory.Difficulty, &fc.Memory.Due,
			&fc.Memory.ElapsedDays, &fc.Memory.ScheduledDays, &fc.Memory.LearningSteps,
			&fc.Memory.Reps, &fc.Memory.Lapses, &state, &fc.Memory.LastReview,
		}
		err := row.Scan(append(dest, questionDest(&fc.Question)...)...)
		fc.Memory.State = card.State(state)
		return fc, err
	})
	if err != nil {
		return nil, fmt.Errorf("list due cards: %w", err)
	}

	questions := make([]*card.Question, len(cards))
	for i := range cards {
		questions[i] = &cards[i].Question
	}
	if err := s.hydrate(ctx, questions); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *Store) ListUnseenQuestions(ctx context.Context, userID, topicID string, limit int) ([]card.Question, error) {
	if limit <= 0 {
		return []card.Question{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions q
		WHERE q.topic_id = $1
			AND NOT EXISTS (SELECT 1 FROM cards c WHERE c.question_id = q.id AND c.user_id = $2)
		ORDER BY q.code ASC, q.id ASC
		LIMIT $3`,
		topicID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unseen questions: %w", err)
	}
	questions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (card.Question, error) {
		var q card.Question
		err := row.Scan(questionDest(&q)...)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("list unseen questions: %w", err)
	}

	ptrs := make([]*card.Question, len(questions))
	for i := range questions {
		ptrs[i] = &questions[i]
	}
	if err := s.hydrate(ctx, ptrs); err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *Store) CountQuestions(ctx context.Context, topicID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE topic_id = $1`, topicID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (s *Store) CountDueCards(ctx context.Context, userID, topicID string, now time.Time, states ...card.State) (int, error) {
	if len(states) == 0 {
		return 0, nil
	}
	codes := make([]int32, len(states))
	for i, st := range states {
		codes[i] = int32(st)
	}

	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM cards c
		JOIN questions q ON q.id = c.question_id
		WHERE c.user_id = $1 AND q.topic_id = $2 AND c.due <= $3 AND c.state = ANY($4)`,
		userID, topicID, now, codes,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count due cards: %w", err)
	}
	return n, nil
}

func (s *Store) CountUnseenQuestions(ctx context.Context, userID, topicID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM questions q
		WHERE q.topic_id = $1
			AND NOT EXISTS (SELECT 1 FROM cards c WHERE c.question_id = q.id AND c.user_id = $2)`,
		topicID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unseen questions: %w", err)
	}
	return n, nil
}

func (s *Store) UpsertCard(ctx context.Context, userID, questionID string, m card.MemoryState) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cards (
			id, user_id, question_id, stability, difficulty, due, elapsed_days,
			scheduled_days, learning_steps, reps, lapses, state, last_review
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, question_id) DO UPDATE SET
			stability = EXCLUDED.stability,
			difficulty = EXCLUDED.difficulty,
			due = EXCLUDED.due,
			elapsed_days = EXCLUDED.elapsed_days,
			scheduled_days = EXCLUDED.scheduled_days,
			learning_steps = EXCLUDED.learning_steps,
			reps = EXCLUDED.reps,
			lapses = EXCLUDED.lapses,
			state = EXCLUDED.state,
			last_review = EXCLUDED.last_review,
			updated_at = NOW()
		RETURNING id`,
		uuid.NewString(), userID, questionID, m.Stability, m.Difficulty, m.Due, m.ElapsedDays,
		m.ScheduledDays, m.LearningSteps, m.Reps, m.Lapses, int(m.State), m.LastReview,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert card: %w", err)
	}
	return id, nil
}

func (s *Store) InsertReviewLog(ctx context.Context, userID string, e card.ReviewLogEntry) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO review_logs (
			id, card_id, user_id, rating, state, stability, difficulty, elapsed_days,
			last_elapsed_days, scheduled_days, learning_steps, due, review
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, e.CardID, userID, int(e.Rating), int(e.State), e.Stability, e.Difficulty, e.ElapsedDays,
		e.LastElapsed, e.ScheduledDays, e.LearningSteps, e.Due, e.Review,
	)
	if err != nil {
		return fmt.Errorf("insert review log: %w", err)
	}
	return nil
}

func (s *Store) UpdateNotes(ctx context.Context, userID, cardID, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cards SET notes = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3`,
		notes, cardID, userID,
	)
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ImportTopic(ctx context.Context, topic card.Topic, questions []card.Question) error {
	createdAt := topic.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO topics (id, name, created_at) VALUES ($1, $2, $3)`,
			topic.ID, topic.Name, createdAt,
		); err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("insert topic: %w", err)
		}

		batch := &pgx.Batch{}
		for _, q := range questions {
			batch.Queue(`
				INSERT INTO questions (
					id, topic_id, code, question_text, question_type,
					content, context, options_title, options_prefix
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				q.ID, topic.ID, q.Code, q.Text, string(q.Type),
				q.Content, q.Context, q.OptionsTitle, q.OptionsPrefix,
			)
			for i, o := range q.Options {
				batch.Queue(`
					INSERT INTO options (
						id, question_id, position, option_text, is_correct,
						correct_order_index, side, correct_match_id
					) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
					o.ID, q.ID, i, o.Text, o.IsCorrect, o.CorrectOrderIndex, o.Side, o.CorrectMatchID,
				)
			}
			for _, p := range q.Pages {
				var url *string
				if p.MaterialURL != "" {
					url = &p.MaterialURL
				}
				batch.Queue(`
					INSERT INTO material_pages (id, number, title, description, key_concepts, material_url)
					VALUES ($1, $2, $3, $4, $5, $6)
					ON CONFLICT (id) DO NOTHING`,
					p.ID, p.Number, p.Title, p.Description, p.KeyConcepts, url,
				)
				batch.Queue(
					`INSERT INTO question_pages (question_id, page_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					q.ID, p.ID,
				)
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

// hydrate loads options and pages for questions in place.
func (s *Store) hydrate(ctx context.Context, questions []*card.Question) error {
	if len(questions) == 0 {
		return nil
	}

	byID := make(map[string]*card.Question, len(questions))
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if q.Options == nil {
			q.Options = []card.Option{}
		}
		if _, seen := byID[q.ID]; !seen {
			ids = append(ids, q.ID)
		}
		byID[q.ID] = q
	}

	rows, err := s.pool.Query(ctx, `
		SELECT question_id, id, option_text, is_correct, correct_order_index, side, correct_match_id
		FROM options
		WHERE question_id = ANY($1)
		ORDER BY question_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	var questionID string
	var o card.Option
	_, err = pgx.ForEachRow(rows, []any{&questionID, &o.ID, &o.Text, &o.IsCorrect, &o.CorrectOrderIndex, &o.Side, &o.CorrectMatchID}, func() error {
		byID[questionID].Options = append(byID[questionID].Options, o)
		o = card.Option{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT qp.question_id, p.id, p.number, p.title, p.description, p.key_concepts, COALESCE(p.material_url, '')
		FROM question_pages qp
		JOIN material_pages p ON p.id = qp.page_id
		WHERE qp.question_id = ANY($1)
		ORDER BY qp.question_id, p.number`, ids)
	if err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	var p card.MaterialPage
	_, err = pgx.ForEachRow(rows, []any{&questionID, &p.ID, &p.Number, &p.Title, &p.Description, &p.KeyConcepts, &p.MaterialURL}, func() error {
		byID[questionID].Pages = append(byID[questionID].Pages, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	return nil
}
