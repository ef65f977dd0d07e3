package store

import (
	"context"
	"database/sql"
	"fmt"
)

const trendWindow = 20

var bucketLabels = [...]string{"0-2", "2-4", "4-6", "6-8", "8-10"}

// bucketFor maps marks on a 10-point scale to a distribution bucket. Each
// bucket is half-open except the last, which also takes a perfect 10.
func bucketFor(score10 float64) int {
	i := int(score10 / 2)
	if i < 0 {
		return 0
	}
	if i >= len(bucketLabels) {
		return len(bucketLabels) - 1
	}
	return i
}

// DashboardStats aggregates the teacher's questions, answers and active
// evaluations. An empty ownerID aggregates everything.
func (s *SQLStore) DashboardStats(ctx context.Context, ownerID string) (Dashboard, error) {
	d := Dashboard{
		ScoreDistribution: make([]ScoreBucket, len(bucketLabels)),
		ConfidenceTrend:   []ConfidencePoint{},
	}
	for i, l := range bucketLabels {
		d.ScoreDistribution[i] = ScoreBucket{Range: l}
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE ($1 = '' OR created_by = $1)`, ownerID).
		Scan(&d.TotalQuestions); err != nil {
		return Dashboard{}, fmt.Errorf("count questions: %w", err)
	}

	var avgConf sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(ocr_confidence) FROM student_answers WHERE ($1 = '' OR uploaded_by = $1)`, ownerID).
		Scan(&d.TotalAnswers, &avgConf); err != nil {
		return Dashboard{}, fmt.Errorf("count answers: %w", err)
	}
	d.AvgOCRConfidence = nullF64(avgConf)

	rows, err := s.db.QueryContext(ctx, `SELECT e.marks, q.max_marks
		FROM student_answers a
		JOIN questions q ON q.id = a.question_id
		JOIN evaluations e ON e.id = a.active_evaluation_id
		WHERE ($1 = '' OR a.uploaded_by = $1)`, ownerID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("scores: %w", err)
	}
	var sum float64
	for rows.Next() {
		var marks, maxMarks float64
		if err := rows.Scan(&marks, &maxMarks); err != nil {
			rows.Close()
			return Dashboard{}, err
		}
		if maxMarks <= 0 {
			maxMarks = 10
		}
		score10 := marks / maxMarks * 10
		sum += score10
		d.TotalEvaluations++
		d.ScoreDistribution[bucketFor(score10)].Count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Dashboard{}, err
	}
	if d.TotalEvaluations > 0 {
		avg := sum / float64(d.TotalEvaluations)
		d.AvgScore = &avg
	}

	trows, err := s.db.QueryContext(ctx, `SELECT ocr_confidence FROM student_answers
		WHERE ($1 = '' OR uploaded_by = $1) AND ocr_confidence IS NOT NULL
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $2`, ownerID, trendWindow)
	if err != nil {
		return Dashboard{}, fmt.Errorf("confidence trend: %w", err)
	}
	defer trows.Close()
	var newestFirst []float64
	for trows.Next() {
		var c float64
		if err := trows.Scan(&c); err != nil {
			return Dashboard{}, err
		}
		newestFirst = append(newestFirst, c)
	}
	if err := trows.Err(); err != nil {
		return Dashboard{}, err
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		d.ConfidenceTrend = append(d.ConfidenceTrend, ConfidencePoint{
			Name:       fmt.Sprintf("A%d", len(d.ConfidenceTrend)+1),
			Confidence: percent(newestFirst[i]),
		})
	}
	return d, nil
}

func percent(v float64) int {
	p := v * 100
	if p < 0 {
		return int(p - 0.5)
	}
	return int(p + 0.5)
}
