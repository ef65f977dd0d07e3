package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/pgvector/pgvector-go"

	"github.com/Jayanthmurala/EduAssist/internal/db"
)

// Vector is an embedding. Postgres stores it in a pgvector column; SQLite
// stores it as a JSON array and similarity is computed in Go.
type Vector []float32

func (s *SQLStore) vectorArg(v Vector) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	if s.driver == db.DriverPostgres {
		return pgvector.NewVector(v), nil
	}
	b, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeVector(raw string) (Vector, error) {
	if raw == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector has zero norm.
func Cosine(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SimilarFeedback returns past teacher corrections whose embedding has cosine
// similarity strictly above threshold, most similar first. Feedback rows carry
// no owner, so the search is global.
func (s *SQLStore) SimilarFeedback(ctx context.Context, emb Vector, threshold float64, limit int) ([]FeedbackMatch, error) {
	if len(emb) == 0 || limit <= 0 {
		return nil, nil
	}
	if s.driver == db.DriverPostgres {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, COALESCE(teacher_feedback, ''), teacher_score, 1 - (embedding <=> $1) AS similarity
			FROM feedback
			WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) > $2
			ORDER BY embedding <=> $1
			LIMIT $3`, pgvector.NewVector(emb), threshold, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []FeedbackMatch
		for rows.Next() {
			var m FeedbackMatch
			var score sql.NullFloat64
			if err := rows.Scan(&m.FeedbackID, &m.TeacherComments, &score, &m.Similarity); err != nil {
				return nil, err
			}
			m.TeacherCorrectedScore = nullF64(score)
			out = append(out, m)
		}
		return out, rows.Err()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(teacher_feedback, ''), teacher_score, embedding
		FROM feedback WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FeedbackMatch
	for rows.Next() {
		var m FeedbackMatch
		var score sql.NullFloat64
		var raw string
		if err := rows.Scan(&m.FeedbackID, &m.TeacherComments, &score, &raw); err != nil {
			return nil, err
		}
		v, err := decodeVector(raw)
		if err != nil {
			return nil, err
		}
		m.Similarity = Cosine(emb, v)
		if m.Similarity <= threshold {
			continue
		}
		m.TeacherCorrectedScore = nullF64(score)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RelevantContext returns chunks of documents uploaded by userID whose
// similarity to emb is strictly above threshold, most similar first.
func (s *SQLStore) RelevantContext(ctx context.Context, emb Vector, threshold float64, limit int, userID string) ([]ContextChunk, error) {
	if len(emb) == 0 || limit <= 0 || userID == "" {
		return nil, nil
	}
	if s.driver == db.DriverPostgres {
		rows, err := s.db.QueryContext(ctx, `
			SELECT c.id, c.document_id, c.chunk_index, c.chunk_content, 1 - (c.embedding <=> $1) AS similarity
			FROM document_chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.uploaded_by = $2 AND 1 - (c.embedding <=> $1) > $3
			ORDER BY c.embedding <=> $1
			LIMIT $4`, pgvector.NewVector(emb), userID, threshold, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []ContextChunk
		for rows.Next() {
			var c ContextChunk
			if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.Similarity); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, rows.Err()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.chunk_content, c.embedding
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.uploaded_by = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContextChunk
	for rows.Next() {
		var c ContextChunk
		var raw string
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.Content, &raw); err != nil {
			return nil, err
		}
		v, err := decodeVector(raw)
		if err != nil {
			return nil, err
		}
		c.Similarity = Cosine(emb, v)
		if c.Similarity <= threshold {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
