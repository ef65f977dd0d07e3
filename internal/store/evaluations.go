package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const evaluationCols = `id, answer_id, similarity_score, concept_coverage, final_score, marks, explanation,
	strengths, weaknesses, missing_concepts, suggestions, model_version, evaluated_at`

func scanEvaluation(r rowScanner) (Evaluation, error) {
	var e Evaluation
	var missing string
	var at int64
	if err := r.Scan(&e.ID, &e.AnswerID, &e.SimilarityScore, &e.ConceptCoverage, &e.FinalScore, &e.Marks,
		&e.Explanation, &e.Strengths, &e.Weaknesses, &missing, &e.Suggestions, &e.ModelVersion, &at); err != nil {
		return Evaluation{}, err
	}
	e.EvaluatedAt = fromMS(at)
	var err error
	if e.MissingConcepts, err = decodeConcepts(missing); err != nil {
		return Evaluation{}, err
	}
	return e, nil
}

// InsertEvaluation stores a new immutable evaluation and makes it the
// answer's active evaluation in one transaction.
func (s *SQLStore) InsertEvaluation(ctx context.Context, e *Evaluation) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.MissingConcepts == nil {
		e.MissingConcepts = []string{}
	}
	mc, err := json.Marshal(e.MissingConcepts)
	if err != nil {
		return err
	}
	now := s.now()
	e.EvaluatedAt = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO evaluations (`+evaluationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.AnswerID, e.SimilarityScore, e.ConceptCoverage, e.FinalScore, e.Marks, e.Explanation,
		e.Strengths, e.Weaknesses, string(mc), e.Suggestions, e.ModelVersion, ms(now)); err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE student_answers SET active_evaluation_id=$1 WHERE id=$2`, e.ID, e.AnswerID)
	if err != nil {
		return fmt.Errorf("set active evaluation: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	e, err := scanEvaluation(s.db.QueryRowContext(ctx,
		`SELECT `+evaluationCols+` FROM evaluations WHERE id=$1`, id))
	if err != nil {
		return Evaluation{}, notFound(err)
	}
	return e, nil
}

// ListEvaluations returns the evaluation history of an answer, newest first.
func (s *SQLStore) ListEvaluations(ctx context.Context, answerID string) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+evaluationCols+` FROM evaluations
		WHERE answer_id=$1 ORDER BY evaluated_at DESC, id DESC`, answerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertFeedback(ctx context.Context, f *Feedback) error {
	if f.ID == "" {
		f.ID = newID()
	}
	emb, err := s.vectorArg(f.Embedding)
	if err != nil {
		return err
	}
	var accurate any
	if f.ScoreAccurate != nil {
		accurate = *f.ScoreAccurate
	}
	var helpful any
	if f.ExplanationHelpful != nil {
		helpful = *f.ExplanationHelpful
	}
	now := s.now()
	f.CreatedAt = now.UTC()
	_, err = s.db.ExecContext(ctx, `INSERT INTO feedback
		(id, evaluation_id, teacher_id, teacher_score, teacher_feedback, score_accurate,
		 what_ai_got_wrong, what_ai_missed, explanation_helpful, embedding, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		f.ID, f.EvaluationID, f.TeacherID, f64Arg(f.TeacherScore), strArg(f.TeacherFeedback), accurate,
		strArg(f.WhatAIGotWrong), strArg(f.WhatAIMissed), helpful, emb, ms(now))
	return err
}

func scanFeedback(r rowScanner) (Feedback, error) {
	var f Feedback
	var score sql.NullFloat64
	var comment, wrong, missed sql.NullString
	var accurate sql.NullBool
	var helpful sql.NullInt64
	var at int64
	if err := r.Scan(&f.ID, &f.EvaluationID, &f.TeacherID, &score, &comment, &accurate,
		&wrong, &missed, &helpful, &at); err != nil {
		return Feedback{}, err
	}
	f.TeacherScore = nullF64(score)
	f.TeacherFeedback = nullStr(comment)
	f.ScoreAccurate = nullBool(accurate)
	f.WhatAIGotWrong = nullStr(wrong)
	f.WhatAIMissed = nullStr(missed)
	f.ExplanationHelpful = nullInt(helpful)
	f.CreatedAt = fromMS(at)
	return f, nil
}

// ListFeedback returns the feedback left on one evaluation, oldest first.
func (s *SQLStore) ListFeedback(ctx context.Context, evaluationID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, evaluation_id, teacher_id, teacher_score, teacher_feedback,
		score_accurate, what_ai_got_wrong, what_ai_missed, explanation_helpful, created_at
		FROM feedback WHERE evaluation_id=$1 ORDER BY created_at, id`, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Feedback{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
