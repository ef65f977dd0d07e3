package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Jayanthmurala/EduAssist/internal/db"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:?_pragma=foreign_keys(1)", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	s := NewSQLStore(conn, db.DriverSQLite)
	// strictly increasing clock so "newest first" orderings are deterministic
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func mustQuestion(t *testing.T, s *SQLStore, owner string, maxMarks float64) Question {
	t.Helper()
	q := Question{QuestionText: "What is osmosis?", IdealAnswer: "Diffusion of water across a membrane.", MaxMarks: maxMarks, CreatedBy: owner}
	if err := s.CreateQuestion(context.Background(), &q); err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func mustAnswer(t *testing.T, s *SQLStore, qid, owner string) StudentAnswer {
	t.Helper()
	a := StudentAnswer{QuestionID: qid, ImagePath: "answers/x.jpg", UploadedBy: owner}
	if err := s.CreateAnswer(context.Background(), &a); err != nil {
		t.Fatalf("create answer: %v", err)
	}
	return a
}

func TestQuestionCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	q := mustQuestion(t, s, "t1", 0)
	if q.MaxMarks != 10 {
		t.Fatalf("default max marks = %v", q.MaxMarks)
	}
	q2 := mustQuestion(t, s, "t1", 5)
	_ = mustQuestion(t, s, "t2", 5)

	list, err := s.ListQuestions(ctx, ListOpts{OwnerID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != q2.ID {
		t.Fatalf("list = %+v", list)
	}

	q.IdealAnswer = "updated"
	if err := s.UpdateQuestion(ctx, &q); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.GetQuestion(ctx, q.ID)
	if got.IdealAnswer != "updated" {
		t.Fatalf("ideal = %q", got.IdealAnswer)
	}

	if err := s.DeleteQuestion(ctx, q.ID, "t2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete err = %v", err)
	}
	if err := s.DeleteQuestion(ctx, q.ID, "t1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetQuestion(ctx, q.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete err = %v", err)
	}
}

func TestAnswerRequiresQuestion(t *testing.T) {
	s := newTestStore(t)
	a := StudentAnswer{QuestionID: "missing", ImagePath: "p", UploadedBy: "t1"}
	if err := s.CreateAnswer(context.Background(), &a); err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestOCRLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := mustQuestion(t, s, "t1", 10)
	a := mustAnswer(t, s, q.ID, "t1")

	v, err := s.GetAnswer(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.OCRStatus != OCRPending || v.OCRText != nil || v.Evaluation != nil {
		t.Fatalf("fresh answer = %+v", v)
	}

	if err := s.SetOCRStatus(ctx, a.ID, OCRFailed, "vision model unavailable"); err != nil {
		t.Fatal(err)
	}
	v, _ = s.GetAnswer(ctx, a.ID)
	if v.OCRStatus != OCRFailed || v.OCRError == nil || *v.OCRError != "vision model unavailable" {
		t.Fatalf("failed answer = %+v", v.StudentAnswer)
	}

	if err := s.SaveOCRResult(ctx, a.ID, OCRResult{Text: "water moves", Confidence: 1.7, Embedding: Vector{1, 0}, EmbeddingModel: "m"}); err != nil {
		t.Fatal(err)
	}
	v, _ = s.GetAnswer(ctx, a.ID)
	if v.OCRStatus != OCRDone || v.OCRError != nil {
		t.Fatalf("status = %s err = %v", v.OCRStatus, v.OCRError)
	}
	if v.OCRText == nil || *v.OCRText != "water moves" {
		t.Fatalf("text = %v", v.OCRText)
	}
	if v.OCRConfidence == nil || *v.OCRConfidence != 1 {
		t.Fatalf("confidence not clamped: %v", v.OCRConfidence)
	}
	if v.EmbeddingModel == nil || *v.EmbeddingModel != "m" {
		t.Fatalf("embedding model = %v", v.EmbeddingModel)
	}

	if err := s.SetOCRStatus(ctx, "nope", OCRDone, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown answer err = %v", err)
	}
}

func TestInsertEvaluationMovesActivePointer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := mustQuestion(t, s, "t1", 10)
	a := mustAnswer(t, s, q.ID, "t1")

	first := Evaluation{AnswerID: a.ID, Marks: 4, FinalScore: 0.4, MissingConcepts: []string{"membrane"}, ModelVersion: "m"}
	if err := s.InsertEvaluation(ctx, &first); err != nil {
		t.Fatal(err)
	}
	second := Evaluation{AnswerID: a.ID, Marks: 7, FinalScore: 0.7, ModelVersion: "m"}
	if err := s.InsertEvaluation(ctx, &second); err != nil {
		t.Fatal(err)
	}

	v, _ := s.GetAnswer(ctx, a.ID)
	if v.Evaluation == nil || v.Evaluation.ID != second.ID {
		t.Fatalf("active evaluation = %+v", v.Evaluation)
	}
	if v.ActiveEvaluationID == nil || *v.ActiveEvaluationID != second.ID {
		t.Fatalf("pointer = %v", v.ActiveEvaluationID)
	}

	hist, err := s.ListEvaluations(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].ID != second.ID || hist[1].MissingConcepts[0] != "membrane" {
		t.Fatalf("history = %+v", hist)
	}

	orphan := Evaluation{AnswerID: "missing", ModelVersion: "m"}
	if err := s.InsertEvaluation(ctx, &orphan); err == nil {
		t.Fatal("expected error for unknown answer")
	}
	if _, err := s.GetEvaluation(ctx, orphan.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("orphan row committed: %v", err)
	}
}

func TestSimilarFeedbackThresholdAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := mustQuestion(t, s, "t1", 10)
	a := mustAnswer(t, s, q.ID, "t1")
	e := Evaluation{AnswerID: a.ID, ModelVersion: "m"}
	if err := s.InsertEvaluation(ctx, &e); err != nil {
		t.Fatal(err)
	}
	add := func(comment string, emb Vector) {
		c := comment
		score := 6.0
		f := Feedback{EvaluationID: e.ID, TeacherID: "t1", TeacherFeedback: &c, TeacherScore: &score, Embedding: emb}
		if err := s.InsertFeedback(ctx, &f); err != nil {
			t.Fatal(err)
		}
	}
	add("exact", Vector{1, 0})
	add("close", Vector{0.95, 0.1})
	add("far", Vector{0, 1})
	add("no embedding", nil)

	got, err := s.SimilarFeedback(ctx, Vector{1, 0}, 0.85, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].TeacherComments != "exact" || got[1].TeacherComments != "close" {
		t.Fatalf("matches = %+v", got)
	}
	if got[0].TeacherCorrectedScore == nil || *got[0].TeacherCorrectedScore != 6 {
		t.Fatalf("score = %v", got[0].TeacherCorrectedScore)
	}

	got, _ = s.SimilarFeedback(ctx, Vector{1, 0}, 0.85, 1)
	if len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}
}

func TestRelevantContextScopedToOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mine := Document{Title: "Bio", FilePath: "text-input", UploadedBy: "t1"}
	theirs := Document{Title: "Bio", FilePath: "text-input", UploadedBy: "t2"}
	for _, d := range []*Document{&mine, &theirs} {
		if err := s.CreateDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
		if err := s.InsertChunk(ctx, &DocumentChunk{DocumentID: d.ID, ChunkIndex: 0, Content: d.UploadedBy, Embedding: Vector{1, 0}}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RelevantContext(ctx, Vector{1, 0}, 0.70, 5, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "t1" {
		t.Fatalf("context = %+v", got)
	}
	if got, _ := s.RelevantContext(ctx, Vector{1, 0}, 0.70, 5, ""); len(got) != 0 {
		t.Fatalf("anonymous lookup returned %d chunks", len(got))
	}

	dup := DocumentChunk{DocumentID: mine.ID, ChunkIndex: 0, Content: "again", Embedding: Vector{1, 0}}
	if err := s.InsertChunk(ctx, &dup); err == nil {
		t.Fatal("duplicate chunk index accepted")
	}
}

func TestDocumentProcessingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := Document{Title: "Notes", FilePath: "text-input", UploadedBy: "t1"}
	if err := s.CreateDocument(ctx, &d); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetDocument(ctx, d.ID)
	if got.IsProcessed {
		t.Fatal("new document already processed")
	}
	for i, c := range []string{"a.", "b."} {
		if err := s.InsertChunk(ctx, &DocumentChunk{DocumentID: d.ID, ChunkIndex: i, Content: c, Embedding: Vector{1}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.MarkDocumentProcessed(ctx, d.ID, 2); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetDocument(ctx, d.ID)
	if !got.IsProcessed || got.ChunkCount != 2 {
		t.Fatalf("document = %+v", got)
	}
	chunks, _ := s.ChunkContents(ctx, d.ID)
	if len(chunks) != 2 || chunks[0] != "a." {
		t.Fatalf("chunks = %v", chunks)
	}
	if err := s.DeleteDocument(ctx, d.ID, "t1"); err != nil {
		t.Fatal(err)
	}
	if chunks, _ := s.ChunkContents(ctx, d.ID); len(chunks) != 0 {
		t.Fatalf("chunks survived delete: %v", chunks)
	}
}

func TestDashboardStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.DashboardStats(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.ScoreDistribution) != 5 || empty.AvgScore != nil || len(empty.ConfidenceTrend) != 0 {
		t.Fatalf("empty dashboard = %+v", empty)
	}

	q := mustQuestion(t, s, "t1", 5)
	confs := []float64{0.5, 0.9}
	for i, marks := range []float64{1, 5} {
		a := mustAnswer(t, s, q.ID, "t1")
		if err := s.SaveOCRResult(ctx, a.ID, OCRResult{Text: "x", Confidence: confs[i]}); err != nil {
			t.Fatal(err)
		}
		// superseded evaluation must not be counted
		old := Evaluation{AnswerID: a.ID, Marks: 0, ModelVersion: "m"}
		if err := s.InsertEvaluation(ctx, &old); err != nil {
			t.Fatal(err)
		}
		e := Evaluation{AnswerID: a.ID, Marks: marks, ModelVersion: "m"}
		if err := s.InsertEvaluation(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}
	other := mustQuestion(t, s, "t2", 10)
	_ = mustAnswer(t, s, other.ID, "t2")

	d, err := s.DashboardStats(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if d.TotalQuestions != 1 || d.TotalAnswers != 2 || d.TotalEvaluations != 2 {
		t.Fatalf("counts = %+v", d)
	}
	// marks 1/5 -> 2.0 (bucket 2-4), 5/5 -> 10 (bucket 8-10)
	want := map[string]int{"0-2": 0, "2-4": 1, "4-6": 0, "6-8": 0, "8-10": 1}
	for _, b := range d.ScoreDistribution {
		if want[b.Range] != b.Count {
			t.Fatalf("bucket %s = %d", b.Range, b.Count)
		}
	}
	if d.AvgScore == nil || *d.AvgScore != 6 {
		t.Fatalf("avg score = %v", d.AvgScore)
	}
	if len(d.ConfidenceTrend) != 2 || d.ConfidenceTrend[0].Confidence != 50 || d.ConfidenceTrend[1].Confidence != 90 {
		t.Fatalf("trend = %+v", d.ConfidenceTrend)
	}
	if d.ConfidenceTrend[0].Name != "A1" {
		t.Fatalf("trend label = %q", d.ConfidenceTrend[0].Name)
	}
}

func TestBucketFor(t *testing.T) {
	cases := map[float64]int{0: 0, 1.99: 0, 2: 1, 7.9: 3, 8: 4, 10: 4, 12: 4, -1: 0}
	for in, want := range cases {
		if got := bucketFor(in); got != want {
			t.Errorf("bucketFor(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestCosine(t *testing.T) {
	if c := Cosine(Vector{1, 0}, Vector{1, 0}); c < 0.999 {
		t.Fatalf("identical = %v", c)
	}
	if c := Cosine(Vector{1, 0}, Vector{0, 1}); c != 0 {
		t.Fatalf("orthogonal = %v", c)
	}
	if c := Cosine(Vector{1}, Vector{1, 0}); c != 0 {
		t.Fatalf("length mismatch = %v", c)
	}
}
