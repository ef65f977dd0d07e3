package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const answerViewSelect = `SELECT
	a.id, a.question_id, a.image_path, a.student_name, a.uploaded_by, a.uploaded_at,
	a.ocr_text, a.ocr_confidence, a.ocr_status, a.ocr_error, a.embedding_model, a.active_evaluation_id,
	q.id, q.question_text, q.ideal_answer, q.max_marks, q.subject, q.difficulty, q.created_by, q.created_at, q.updated_at,
	e.id, e.similarity_score, e.concept_coverage, e.final_score, e.marks, e.explanation, e.strengths,
	e.weaknesses, e.missing_concepts, e.suggestions, e.model_version, e.evaluated_at
FROM student_answers a
JOIN questions q ON q.id = a.question_id
LEFT JOIN evaluations e ON e.id = a.active_evaluation_id`

func scanAnswerView(r rowScanner) (AnswerView, error) {
	var v AnswerView
	var (
		studentName, ocrText, ocrErr, embModel, activeID sql.NullString
		ocrConf                                          sql.NullFloat64
		status                                           string
		uploaded                                         int64

		subject, difficulty sql.NullString
		qCreated, qUpdated  int64

		eID, eExpl, eStr, eWeak, eMissing, eSugg, eModel sql.NullString
		eSim, eCov, eFinal, eMarks                       sql.NullFloat64
		eAt                                              sql.NullInt64
	)
	err := r.Scan(
		&v.ID, &v.QuestionID, &v.ImagePath, &studentName, &v.UploadedBy, &uploaded,
		&ocrText, &ocrConf, &status, &ocrErr, &embModel, &activeID,
		&v.Question.ID, &v.Question.QuestionText, &v.Question.IdealAnswer, &v.Question.MaxMarks,
		&subject, &difficulty, &v.Question.CreatedBy, &qCreated, &qUpdated,
		&eID, &eSim, &eCov, &eFinal, &eMarks, &eExpl, &eStr, &eWeak, &eMissing, &eSugg, &eModel, &eAt,
	)
	if err != nil {
		return AnswerView{}, err
	}
	v.StudentName = nullStr(studentName)
	v.UploadedAt = fromMS(uploaded)
	v.OCRText = nullStr(ocrText)
	v.OCRConfidence = nullF64(ocrConf)
	v.OCRStatus = OCRStatus(status)
	v.OCRError = nullStr(ocrErr)
	v.EmbeddingModel = nullStr(embModel)
	v.ActiveEvaluationID = nullStr(activeID)
	v.Question.Subject, v.Question.Difficulty = nullStr(subject), nullStr(difficulty)
	v.Question.CreatedAt, v.Question.UpdatedAt = fromMS(qCreated), fromMS(qUpdated)

	if eID.Valid {
		e := &Evaluation{
			ID:              eID.String,
			AnswerID:        v.ID,
			SimilarityScore: eSim.Float64,
			ConceptCoverage: eCov.Float64,
			FinalScore:      eFinal.Float64,
			Marks:           eMarks.Float64,
			Explanation:     eExpl.String,
			Strengths:       eStr.String,
			Weaknesses:      eWeak.String,
			Suggestions:     eSugg.String,
			ModelVersion:    eModel.String,
			EvaluatedAt:     fromMS(eAt.Int64),
		}
		if e.MissingConcepts, err = decodeConcepts(eMissing.String); err != nil {
			return AnswerView{}, err
		}
		v.Evaluation = e
	}
	return v, nil
}

// CreateAnswer inserts a new answer in the pending OCR state. The question
// must exist; callers check that before writing the image.
func (s *SQLStore) CreateAnswer(ctx context.Context, a *StudentAnswer) error {
	if a.ID == "" {
		a.ID = newID()
	}
	now := s.now()
	a.UploadedAt = now.UTC()
	a.OCRStatus = OCRPending
	_, err := s.db.ExecContext(ctx, `INSERT INTO student_answers
		(id, question_id, image_path, student_name, uploaded_by, uploaded_at, ocr_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.QuestionID, a.ImagePath, strArg(a.StudentName), a.UploadedBy, ms(now), string(OCRPending))
	return err
}

func (s *SQLStore) GetAnswer(ctx context.Context, id string) (AnswerView, error) {
	v, err := scanAnswerView(s.db.QueryRowContext(ctx, answerViewSelect+` WHERE a.id=$1`, id))
	if err != nil {
		return AnswerView{}, notFound(err)
	}
	return v, nil
}

// ListAnswers returns answers newest first, each joined with its question and
// active evaluation.
func (s *SQLStore) ListAnswers(ctx context.Context, opts ListOpts) ([]AnswerView, error) {
	limit, offset := pageDefaults(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, answerViewSelect+`
		WHERE ($1 = '' OR a.uploaded_by = $1) AND ($2 = '' OR a.question_id = $2)
		ORDER BY a.uploaded_at DESC, a.id DESC
		LIMIT $3 OFFSET $4`, opts.OwnerID, opts.QuestionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AnswerView{}
	for rows.Next() {
		v, err := scanAnswerView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetOCRStatus records an OCR state transition. errMsg is stored only for
// the failed state and cleared otherwise.
func (s *SQLStore) SetOCRStatus(ctx context.Context, answerID string, status OCRStatus, errMsg string) error {
	var e any
	if status == OCRFailed && errMsg != "" {
		e = errMsg
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE student_answers SET ocr_status=$1, ocr_error=$2 WHERE id=$3`,
		string(status), e, answerID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// SaveOCRResult writes extracted (or teacher-corrected) text and marks the
// answer done. A nil embedding clears any previous one.
func (s *SQLStore) SaveOCRResult(ctx context.Context, answerID string, r OCRResult) error {
	conf := clamp01(r.Confidence)
	emb, err := s.vectorArg(r.Embedding)
	if err != nil {
		return err
	}
	var model any
	if len(r.Embedding) > 0 && r.EmbeddingModel != "" {
		model = r.EmbeddingModel
	}
	res, err := s.db.ExecContext(ctx, `UPDATE student_answers
		SET ocr_text=$1, ocr_confidence=$2, embedding=$3, embedding_model=$4, ocr_status=$5, ocr_error=NULL
		WHERE id=$6`,
		r.Text, conf, emb, model, string(OCRDone), answerID)
	if err != nil {
		return fmt.Errorf("save ocr result: %w", err)
	}
	return affectedOrNotFound(res)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func decodeConcepts(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode missing_concepts: %w", err)
	}
	return out, nil
}
