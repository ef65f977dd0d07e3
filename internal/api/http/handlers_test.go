package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/db"
	"github.com/Jayanthmurala/EduAssist/internal/events"
	"github.com/Jayanthmurala/EduAssist/internal/grading"
	"github.com/Jayanthmurala/EduAssist/internal/grading/ocr"
	"github.com/Jayanthmurala/EduAssist/internal/ingest"
	"github.com/Jayanthmurala/EduAssist/internal/llm"
	"github.com/Jayanthmurala/EduAssist/internal/rbac"
	"github.com/Jayanthmurala/EduAssist/internal/storage"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs map[string]string
	err  error
}

func (q *fakeQueue) Dispatch(answerID, imageKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.jobs == nil {
		q.jobs = map[string]string{}
	}
	q.jobs[answerID] = imageKey
	return nil
}

type fakeGrader struct {
	err error
	got grading.Request
}

func (g *fakeGrader) Evaluate(_ context.Context, req grading.Request) (store.Evaluation, error) {
	g.got = req
	if g.err != nil {
		return store.Evaluation{}, g.err
	}
	return store.Evaluation{ID: "ev", AnswerID: req.AnswerID, Marks: 7}, nil
}

type fakeOCR struct{}

func (fakeOCR) Extract(context.Context, string, string) (ocr.Result, error) {
	return ocr.Result{Text: "water moves", Confidence: 0.9}, nil
}

func (fakeOCR) Correct(_ context.Context, _ string, text string) (ocr.Result, error) {
	return ocr.Result{Text: text, Confidence: 1}, nil
}

type fakeIngester struct{ calls int }

func (f *fakeIngester) Ingest(context.Context, string, ingest.Request) (ingest.Response, error) {
	f.calls++
	return ingest.Response{Success: true, ChunksProcessed: 1, DocumentID: "d1"}, nil
}

type proseChat struct{}

func (proseChat) Chat(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
	return "The student shows a fair understanding of osmosis.", nil
}

func (proseChat) ChatModel() string { return "test-model" }

type fencedChat struct{}

func (fencedChat) Chat(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
	return "```json\n" + `{"similarity_score":0.9,"concept_coverage":0.8,"final_score":0.85,"marks":15,"explanation":"Good."}` + "\n```", nil
}

func (fencedChat) ChatModel() string { return "test-model" }

type fakeEmbedder struct{ texts []string }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return []float32{1, 0, 0}, nil
}

type env struct {
	srv    *httptest.Server
	st     *store.SQLStore
	blobs  *storage.FSStore
	dir    string
	queue  *fakeQueue
	grader *fakeGrader
	ingest *fakeIngester
	embed  *fakeEmbedder
	auth   *auth.AuthService
}

func newEnv(t *testing.T, mut func(*Deps)) *env {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:?_pragma=foreign_keys(1)", 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	dir := t.TempDir()
	e := &env{
		st:     store.NewSQLStore(conn, db.DriverSQLite),
		dir:    dir,
		queue:  &fakeQueue{},
		grader: &fakeGrader{},
		ingest: &fakeIngester{},
		embed:  &fakeEmbedder{},
		auth:   auth.NewAuthService("test-secret"),
	}
	e.blobs, err = storage.NewFSStore(dir, "http://example.test", "asset-secret")
	if err != nil {
		t.Fatal(err)
	}
	d := Deps{
		Store:              e.st,
		Blobs:              e.blobs,
		Auth:               e.auth,
		Grader:             e.grader,
		OCR:                fakeOCR{},
		OCRQueue:           e.queue,
		Ingester:           e.ingest,
		Embedder:           e.embed,
		EnableLocalAuth:    true,
		AllowClaimFallback: true,
	}
	if mut != nil {
		mut(&d)
	}
	e.srv = httptest.NewServer(NewRouter(d))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := e.auth.IssueJWT(sub, role)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *env) do(t *testing.T, method, path, tok string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *env) question(t *testing.T, owner string) store.Question {
	t.Helper()
	q := store.Question{QuestionText: "What is osmosis?", IdealAnswer: "Water crossing a membrane.", MaxMarks: 5, CreatedBy: owner}
	if err := e.st.CreateQuestion(context.Background(), &q); err != nil {
		t.Fatal(err)
	}
	return q
}

func (e *env) answer(t *testing.T, qid, owner string) store.StudentAnswer {
	t.Helper()
	a := store.StudentAnswer{QuestionID: qid, ImagePath: "answers/" + owner + "/a.png", UploadedBy: owner}
	if err := e.st.CreateAnswer(context.Background(), &a); err != nil {
		t.Fatal(err)
	}
	return a
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "answer.png")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(file)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *env) upload(t *testing.T, tok string, fields map[string]string, file []byte) (*http.Response, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, fields, file)
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/answers", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func blobCount(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func TestEvaluateAnswerMissingFields(t *testing.T) {
	e := newEnv(t, nil)
	tok := e.token(t, "t1", rbac.RoleTeacher)
	resp, out := e.do(t, http.MethodPost, "/functions/evaluate-answer", tok,
		map[string]any{"answerId": "a1", "questionText": "What is osmosis?"})
	if resp.StatusCode != http.StatusBadRequest || out["error"] != "Missing required fields" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
}

func TestEvaluateAnswerProseReplyStoresNothing(t *testing.T) {
	var st *store.SQLStore
	e := newEnv(t, func(d *Deps) {
		st = d.Store.(*store.SQLStore)
		d.Grader = grading.NewPipeline(proseChat{}, nil, nil, st)
	})
	q := e.question(t, "t1")
	a := e.answer(t, q.ID, "t1")
	resp, out := e.do(t, http.MethodPost, "/functions/evaluate-answer", e.token(t, "t1", rbac.RoleTeacher), map[string]any{
		"answerId": a.ID, "questionText": q.QuestionText, "idealAnswer": q.IdealAnswer, "maxMarks": 5,
	})
	if resp.StatusCode != http.StatusInternalServerError || out["error"] != "Failed to parse AI evaluation response" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	evs, err := st.ListEvaluations(context.Background(), a.ID)
	if err != nil || len(evs) != 0 {
		t.Fatalf("evaluations = %v, %v", evs, err)
	}
}

func TestEvaluateAnswerReturnsEnvelope(t *testing.T) {
	var st *store.SQLStore
	e := newEnv(t, func(d *Deps) {
		st = d.Store.(*store.SQLStore)
		d.Grader = grading.NewPipeline(fencedChat{}, nil, nil, st)
	})
	q := e.question(t, "t1")
	a := e.answer(t, q.ID, "t1")
	resp, out := e.do(t, http.MethodPost, "/functions/evaluate-answer", e.token(t, "t1", rbac.RoleTeacher), map[string]any{
		"answerId": a.ID, "questionText": q.QuestionText, "idealAnswer": q.IdealAnswer, "maxMarks": 10,
	})
	if resp.StatusCode != http.StatusOK || out["success"] != true {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	ev, ok := out["evaluation"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v", out)
	}
	if ev["marks"].(float64) != 10 || ev["answer_id"] != a.ID || ev["model_version"] != "test-model" {
		t.Fatalf("evaluation = %v", ev)
	}
	stored, err := e.st.ListEvaluations(context.Background(), a.ID)
	if err != nil || len(stored) != 1 || stored[0].ID != ev["id"] {
		t.Fatalf("stored = %+v, %v", stored, err)
	}
}

func TestEvaluateAnswerRateLimited(t *testing.T) {
	e := newEnv(t, nil)
	e.grader.err = llm.ErrRateLimited
	q := e.question(t, "t1")
	a := e.answer(t, q.ID, "t1")
	resp, out := e.do(t, http.MethodPost, "/functions/evaluate-answer", e.token(t, "t1", rbac.RoleTeacher), map[string]any{
		"answerId": a.ID, "questionText": "q", "idealAnswer": "i",
	})
	if resp.StatusCode != http.StatusTooManyRequests || !strings.Contains(out["error"].(string), "429") {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	if e.grader.got.TeacherID != "t1" {
		t.Fatalf("teacher id = %q", e.grader.got.TeacherID)
	}
}

func TestPreflight(t *testing.T) {
	e := newEnv(t, nil)
	req, _ := http.NewRequest(http.MethodOptions, e.srv.URL+"/functions/evaluate-answer", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestIngestRequiresBearer(t *testing.T) {
	e := newEnv(t, nil)
	resp, _ := e.do(t, http.MethodPost, "/functions/ingest-document", "", map[string]any{"textContent": "x."})
	if resp.StatusCode != http.StatusUnauthorized || e.ingest.calls != 0 {
		t.Fatalf("status=%d calls=%d", resp.StatusCode, e.ingest.calls)
	}
	resp, out := e.do(t, http.MethodPost, "/functions/ingest-document", e.token(t, "t1", rbac.RoleTeacher), map[string]any{"textContent": "x."})
	if resp.StatusCode != http.StatusOK || out["document_id"] != "d1" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
}

func TestUploadWithoutQuestionWritesNothing(t *testing.T) {
	e := newEnv(t, nil)
	tok := e.token(t, "t1", rbac.RoleTeacher)
	for _, fields := range []map[string]string{{}, {"question_id": "missing"}} {
		resp, out := e.upload(t, tok, fields, pngBytes(t))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("fields %v: status=%d body=%v", fields, resp.StatusCode, out)
		}
	}
	as, err := e.st.ListAnswers(context.Background(), store.ListOpts{})
	if err != nil || len(as) != 0 {
		t.Fatalf("answers = %v, %v", as, err)
	}
	if n := blobCount(t, e.dir); n != 0 {
		t.Fatalf("%d blobs written", n)
	}
	if len(e.queue.jobs) != 0 {
		t.Fatal("ocr dispatched")
	}
}

func TestUploadCreatesPendingAnswer(t *testing.T) {
	e := newEnv(t, nil)
	q := e.question(t, "t1")
	resp, out := e.upload(t, e.token(t, "t1", rbac.RoleTeacher),
		map[string]string{"question_id": q.ID, "student_name": "Asha", "enhance": "true"}, pngBytes(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	if out["ocr_status"] != "pending" || out["ocr_text"] != nil || out["student_name"] != "Asha" {
		t.Fatalf("answer = %v", out)
	}
	id := out["id"].(string)
	if k := e.queue.jobs[id]; k != out["image_path"] || !strings.HasPrefix(k, "answers/t1/") {
		t.Fatalf("dispatched key = %q", k)
	}
	if !strings.HasSuffix(out["image_path"].(string), ".jpg") || blobCount(t, e.dir) != 1 {
		t.Fatalf("image_path = %v", out["image_path"])
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	e := newEnv(t, nil)
	q := e.question(t, "t1")
	body, ct := multipartBody(t, map[string]string{"question_id": q.ID}, nil)
	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/answers", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+e.token(t, "t1", rbac.RoleTeacher))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing file: status=%d", resp.StatusCode)
	}
	if imageContentType("application/octet-stream", []byte("%PDF-1.4 hello")) != "" {
		t.Fatal("pdf accepted as image")
	}
}

func TestDispatchFailureMarksAnswerFailed(t *testing.T) {
	e := newEnv(t, nil)
	e.queue.err = ocr.ErrRunnerClosed
	q := e.question(t, "t1")
	resp, out := e.upload(t, e.token(t, "t1", rbac.RoleTeacher), map[string]string{"question_id": q.ID}, pngBytes(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	v, err := e.st.GetAnswer(context.Background(), out["id"].(string))
	if err != nil || v.OCRStatus != store.OCRFailed || v.OCRError == nil {
		t.Fatalf("answer = %+v, %v", v, err)
	}
}

func TestOwnershipScoping(t *testing.T) {
	e := newEnv(t, nil)
	q := e.question(t, "t2")
	a := e.answer(t, q.ID, "t2")

	resp, _ := e.do(t, http.MethodGet, "/answers/"+a.ID, e.token(t, "t1", rbac.RoleTeacher), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other teacher: status=%d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodGet, "/answers/"+a.ID, e.token(t, "t2", rbac.RoleTeacher), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner: status=%d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodGet, "/answers/"+a.ID, e.token(t, "root", rbac.RoleAdmin), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin: status=%d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodDelete, "/questions/"+q.ID, e.token(t, "t1", rbac.RoleTeacher), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete other teacher's question: status=%d", resp.StatusCode)
	}
}

func TestQuestionRoutes(t *testing.T) {
	e := newEnv(t, nil)
	tok := e.token(t, "t1", rbac.RoleTeacher)
	resp, out := e.do(t, http.MethodPost, "/questions", tok, map[string]any{"question_text": "Define osmosis."})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(out["error"].(string), "ideal_answer is required") {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	resp, out = e.do(t, http.MethodPost, "/questions", tok, map[string]any{"question_text": "Define osmosis.", "ideal_answer": "Water moves."})
	if resp.StatusCode != http.StatusCreated || out["max_marks"].(float64) != 10 {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	id := out["id"].(string)
	resp, out = e.do(t, http.MethodPut, "/questions/"+id, tok, map[string]any{"question_text": "Define osmosis.", "ideal_answer": "Water moves.", "max_marks": 4})
	if resp.StatusCode != http.StatusOK || out["max_marks"].(float64) != 4 {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	resp, _ = e.do(t, http.MethodDelete, "/questions/"+id, tok, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
}

func TestEvaluateStoredAnswer(t *testing.T) {
	e := newEnv(t, nil)
	q := e.question(t, "t1")
	a := e.answer(t, q.ID, "t1")
	if _, err := e.blobs.Put(context.Background(), a.ImagePath, bytes.NewReader(pngBytes(t)), "image/png"); err != nil {
		t.Fatal(err)
	}
	resp, out := e.do(t, http.MethodPost, "/answers/"+a.ID+"/evaluate", e.token(t, "root", rbac.RoleAdmin), nil)
	if resp.StatusCode != http.StatusOK || out["success"] != true {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	if ev, ok := out["evaluation"].(map[string]any); !ok || ev["marks"].(float64) != 7 {
		t.Fatalf("evaluation = %v", out["evaluation"])
	}
	got := e.grader.got
	if got.QuestionText != q.QuestionText || got.MaxMarks != 5 || got.TeacherID != "t1" || got.OCRText != "" {
		t.Fatalf("request = %+v", got)
	}
	if !strings.HasPrefix(got.ImageURL, "data:image/png;base64,") {
		t.Fatalf("image url = %.40q", got.ImageURL)
	}
}

func TestSubmitFeedbackEmbedsAnswer(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	q := e.question(t, "t1")
	a := e.answer(t, q.ID, "t1")
	if err := e.st.SaveOCRResult(ctx, a.ID, store.OCRResult{Text: "water moves", Confidence: 0.8}); err != nil {
		t.Fatal(err)
	}
	ev := store.Evaluation{AnswerID: a.ID, Marks: 3}
	if err := e.st.InsertEvaluation(ctx, &ev); err != nil {
		t.Fatal(err)
	}
	tok := e.token(t, "t1", rbac.RoleTeacher)
	resp, out := e.do(t, http.MethodPost, "/evaluations/"+ev.ID+"/feedback", tok, map[string]any{"explanation_helpful": 9})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("helpfulness out of range: status=%d body=%v", resp.StatusCode, out)
	}
	resp, out = e.do(t, http.MethodPost, "/evaluations/"+ev.ID+"/feedback", tok, map[string]any{
		"teacher_score": 8, "teacher_feedback": "too strict", "score_accurate": false,
	})
	if resp.StatusCode != http.StatusCreated || out["teacher_score"].(float64) != 5 {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	if len(e.embed.texts) != 1 || e.embed.texts[0] != "What is osmosis? water moves" {
		t.Fatalf("embedded = %q", e.embed.texts)
	}
	matches, err := e.st.SimilarFeedback(ctx, store.Vector{1, 0, 0}, 0.85, 3)
	if err != nil || len(matches) != 1 || matches[0].TeacherComments != "too strict" {
		t.Fatalf("matches = %+v, %v", matches, err)
	}
}

func TestFeedbackOnImageOnlyAnswerUsesPlaceholder(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	q := e.question(t, "t1")
	a := e.answer(t, q.ID, "t1")
	ev := store.Evaluation{AnswerID: a.ID, Marks: 2}
	if err := e.st.InsertEvaluation(ctx, &ev); err != nil {
		t.Fatal(err)
	}
	resp, out := e.do(t, http.MethodPost, "/evaluations/"+ev.ID+"/feedback", e.token(t, "t1", rbac.RoleTeacher), map[string]any{
		"teacher_feedback": "read the diagram",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%v", resp.StatusCode, out)
	}
	want := grading.FeedbackMatchText(q.QuestionText, "")
	if len(e.embed.texts) != 1 || e.embed.texts[0] != want || !strings.Contains(want, grading.NoTextPlaceholder) {
		t.Fatalf("embedded = %q", e.embed.texts)
	}
}

func TestAssetsRequireValidToken(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	if _, err := e.blobs.Put(ctx, "answers/t1/x.png", bytes.NewReader(pngBytes(t)), "image/png"); err != nil {
		t.Fatal(err)
	}
	signed, err := e.blobs.SignedURL(ctx, "answers/t1/x.png", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	path := strings.TrimPrefix(signed, "http://example.test")
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status=%d type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	resp, err = http.Get(e.srv.URL + "/assets/answers/t1/x.png?token=forged")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("forged token: status=%d", resp.StatusCode)
	}
}

func TestEventsAdminOnly(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Events = stubEvents{} })
	resp, _ := e.do(t, http.MethodGet, "/events", e.token(t, "t1", rbac.RoleTeacher), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("teacher: status=%d", resp.StatusCode)
	}
	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+e.token(t, "root", rbac.RoleAdmin))
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("admin: status=%d", r.StatusCode)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{grading.ErrMissingFields, 400},
		{ingest.ErrMissingContent, 400},
		{store.ErrNotFound, 404},
		{llm.ErrRateLimited, 429},
		{llm.ErrNotConfigured, 500},
		{errors.New("upstream 503"), 500},
	}
	for _, c := range cases {
		if got, _ := classify(c.err); got != c.code {
			t.Errorf("classify(%v) = %d, want %d", c.err, got, c.code)
		}
	}
	if _, msg := classify(llm.ErrNotConfigured); msg != "AI_API_KEY is not configured" {
		t.Fatalf("msg = %q", msg)
	}
}

type stubEvents struct{}

func (stubEvents) Recent(context.Context, string, int) ([]events.Event, error) {
	return []events.Event{}, nil
}
