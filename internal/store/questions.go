package store

import (
	"context"
	"database/sql"
)

const questionCols = `id, question_text, ideal_answer, max_marks, subject, difficulty, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (Question, error) {
	var q Question
	var subject, difficulty sql.NullString
	var created, updated int64
	if err := r.Scan(&q.ID, &q.QuestionText, &q.IdealAnswer, &q.MaxMarks, &subject, &difficulty,
		&q.CreatedBy, &created, &updated); err != nil {
		return Question{}, err
	}
	q.Subject, q.Difficulty = nullStr(subject), nullStr(difficulty)
	q.CreatedAt, q.UpdatedAt = fromMS(created), fromMS(updated)
	return q, nil
}

func (s *SQLStore) CreateQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = newID()
	}
	if q.MaxMarks <= 0 {
		q.MaxMarks = 10
	}
	now := s.now()
	q.CreatedAt, q.UpdatedAt = now.UTC(), now.UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		q.ID, q.QuestionText, q.IdealAnswer, q.MaxMarks, strArg(q.Subject), strArg(q.Difficulty),
		q.CreatedBy, ms(now), ms(now))
	return err
}

// UpdateQuestion rewrites the editable fields; only the owner may update.
func (s *SQLStore) UpdateQuestion(ctx context.Context, q *Question) error {
	if q.MaxMarks <= 0 {
		q.MaxMarks = 10
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `UPDATE questions
		SET question_text=$1, ideal_answer=$2, max_marks=$3, subject=$4, difficulty=$5, updated_at=$6
		WHERE id=$7 AND created_by=$8`,
		q.QuestionText, q.IdealAnswer, q.MaxMarks, strArg(q.Subject), strArg(q.Difficulty), ms(now),
		q.ID, q.CreatedBy)
	if err != nil {
		return err
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	got, err := s.GetQuestion(ctx, q.ID)
	if err != nil {
		return err
	}
	*q = got
	return nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE id=$1`, id))
	if err != nil {
		return Question{}, notFound(err)
	}
	return q, nil
}

// ListQuestions returns questions newest first.
func (s *SQLStore) ListQuestions(ctx context.Context, opts ListOpts) ([]Question, error) {
	limit, offset := pageDefaults(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionCols+` FROM questions
		WHERE ($1 = '' OR created_by = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, opts.OwnerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// DeleteQuestion removes a question and, through the foreign keys, its
// answers and their evaluations.
func (s *SQLStore) DeleteQuestion(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM questions WHERE id=$1 AND ($2 = '' OR created_by = $2)`, id, ownerID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
