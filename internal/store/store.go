package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Jayanthmurala/EduAssist/internal/db"
)

var ErrNotFound = errors.New("not found")

type ListOpts struct {
	OwnerID    string // empty: all owners (admin)
	QuestionID string
	Limit      int
	Offset     int
}

// Store is the persistence surface used by the HTTP layer. Packages that need
// a slice of it (grading, ocr, ingest) declare their own narrower interfaces.
type Store interface {
	CreateQuestion(ctx context.Context, q *Question) error
	UpdateQuestion(ctx context.Context, q *Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	ListQuestions(ctx context.Context, opts ListOpts) ([]Question, error)
	DeleteQuestion(ctx context.Context, id, ownerID string) error

	CreateAnswer(ctx context.Context, a *StudentAnswer) error
	GetAnswer(ctx context.Context, id string) (AnswerView, error)
	ListAnswers(ctx context.Context, opts ListOpts) ([]AnswerView, error)
	SetOCRStatus(ctx context.Context, answerID string, status OCRStatus, errMsg string) error
	SaveOCRResult(ctx context.Context, answerID string, res OCRResult) error

	InsertEvaluation(ctx context.Context, e *Evaluation) error
	GetEvaluation(ctx context.Context, id string) (Evaluation, error)
	ListEvaluations(ctx context.Context, answerID string) ([]Evaluation, error)

	InsertFeedback(ctx context.Context, f *Feedback) error
	ListFeedback(ctx context.Context, evaluationID string) ([]Feedback, error)

	CreateDocument(ctx context.Context, d *Document) error
	InsertChunk(ctx context.Context, c *DocumentChunk) error
	GetDocument(ctx context.Context, id string) (Document, error)
	MarkDocumentProcessed(ctx context.Context, id string, chunkCount int) error
	ListDocuments(ctx context.Context, ownerID string) ([]Document, error)
	DeleteDocument(ctx context.Context, id, ownerID string) error

	SimilarFeedback(ctx context.Context, emb Vector, threshold float64, limit int) ([]FeedbackMatch, error)
	RelevantContext(ctx context.Context, emb Vector, threshold float64, limit int, userID string) ([]ContextChunk, error)

	DashboardStats(ctx context.Context, ownerID string) (Dashboard, error)

	UpsertUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (User, error)
	UserRole(ctx context.Context, sub string) (string, error)
}

type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	now    func() time.Time
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(conn *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: conn, driver: driver, now: time.Now}
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func newID() string { return uuid.NewString() }

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullF64(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullBool(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	v := nb.Bool
	return &v
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func strArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func f64Arg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func pageDefaults(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
