package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/events"
	"github.com/Jayanthmurala/EduAssist/internal/grading"
	"github.com/Jayanthmurala/EduAssist/internal/grading/ocr"
	"github.com/Jayanthmurala/EduAssist/internal/ingest"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/rbac"
	"github.com/Jayanthmurala/EduAssist/internal/storage"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

type Evaluator interface {
	Evaluate(ctx context.Context, req grading.Request) (store.Evaluation, error)
}

type OCRService interface {
	Extract(ctx context.Context, answerID, imageURL string) (ocr.Result, error)
	Correct(ctx context.Context, answerID, text string) (ocr.Result, error)
}

// OCRDispatcher queues extraction of the image stored under imageKey.
type OCRDispatcher interface {
	Dispatch(answerID, imageKey string) error
}

type Ingester interface {
	Ingest(ctx context.Context, teacherID string, req ingest.Request) (ingest.Response, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Recorder interface {
	Record(ctx context.Context, typ, key string, cause error, fields map[string]any)
}

type EventLister interface {
	Recent(ctx context.Context, typ string, limit int) ([]events.Event, error)
}

// AssetVerifier is implemented by blob stores whose signed URLs are served
// by this process under /assets.
type AssetVerifier interface {
	Verify(key, token string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store    store.Store
	Blobs    storage.BlobStore
	Auth     *auth.AuthService
	Grader   Evaluator
	OCR      OCRService
	OCRQueue OCRDispatcher
	Ingester Ingester
	Embedder Embedder
	Recorder Recorder
	Events   EventLister
	Log      *logger.Logger

	CORSOrigins        []string
	SignedURLTTL       time.Duration
	EnableLocalAuth    bool
	AllowClaimFallback bool
	MaxUploadBytes     int64
	RequestTimeout     time.Duration
}

func (d *Deps) defaults() {
	d.Log = logger.OrNop(d.Log)
	if d.SignedURLTTL <= 0 {
		d.SignedURLTTL = 300 * time.Second
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 20 << 20
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 2 * time.Minute
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
}

// NewRouter mounts the public, asset and bearer-authenticated routes.
func NewRouter(d Deps) http.Handler {
	d.defaults()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(d.Log), middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(d.CORSOrigins)))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(d.Store, d.Log))

	if d.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Store, d.Log))
	}
	if v, ok := d.Blobs.(AssetVerifier); ok {
		r.Route("/assets", func(ar chi.Router) {
			MountAssets(ar, d.Blobs, v, d.Log)
		})
	}

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.Timeout(d.RequestTimeout))
		pr.Use(auth.JWTMiddleware(d.Auth))
		pr.Use(auth.AttachRoleFromDB(d.Store, d.AllowClaimFallback, d.Log))

		pr.Route("/functions", func(fr chi.Router) {
			fr.With(rbac.Require(rbac.PermEvaluationRun)).
				Post("/evaluate-answer", EvaluateAnswerHandler(d.Grader, d.Store, d.Log))
			fr.With(rbac.Require(rbac.PermOCRRun)).
				Post("/process-ocr", ProcessOCRHandler(d.OCR, d.Store, d.Log))
			fr.With(rbac.Require(rbac.PermDocumentIngest)).
				Post("/ingest-document", IngestDocumentHandler(d.Ingester, d.Log))
		})

		pr.Route("/questions", func(qr chi.Router) {
			qr.With(rbac.Require(rbac.PermQuestionView)).Get("/", ListQuestionsHandler(d.Store, d.Log))
			qr.With(rbac.Require(rbac.PermQuestionWrite)).Post("/", CreateQuestionHandler(d.Store, d.Log))
			qr.With(rbac.Require(rbac.PermQuestionView)).Get("/{questionID}", GetQuestionHandler(d.Store, d.Log))
			qr.With(rbac.Require(rbac.PermQuestionWrite)).Put("/{questionID}", UpdateQuestionHandler(d.Store, d.Log))
			qr.With(rbac.Require(rbac.PermQuestionWrite)).Delete("/{questionID}", DeleteQuestionHandler(d.Store, d.Log))
		})

		pr.Route("/answers", func(ar chi.Router) {
			ar.With(rbac.Require(rbac.PermAnswerView)).Get("/", ListAnswersHandler(d.Store, d.Log))
			ar.With(rbac.Require(rbac.PermAnswerUpload)).
				Post("/", UploadAnswerHandler(d.Store, d.Blobs, d.OCRQueue, d.MaxUploadBytes, d.Log))
			ar.With(rbac.Require(rbac.PermAnswerView)).Get("/{answerID}", GetAnswerHandler(d.Store, d.Log))
			ar.With(rbac.RequireAny(rbac.PermAnswerView, rbac.PermOCRCorrect)).
				Get("/{answerID}/image-url", AnswerImageURLHandler(d.Store, d.Blobs, d.SignedURLTTL, d.Log))
			ar.With(rbac.Require(rbac.PermOCRRun)).
				Post("/{answerID}/ocr", RetryOCRHandler(d.Store, d.OCRQueue, d.Log))
			ar.With(rbac.Require(rbac.PermOCRCorrect)).
				Put("/{answerID}/ocr", CorrectOCRHandler(d.OCR, d.Store, d.Log))
			ar.With(rbac.Require(rbac.PermEvaluationRun)).
				Post("/{answerID}/evaluate", EvaluateStoredAnswerHandler(d.Grader, d.Store, d.Blobs, d.SignedURLTTL, d.Log))
			ar.With(rbac.Require(rbac.PermAnswerView)).
				Get("/{answerID}/evaluations", ListEvaluationsHandler(d.Store, d.Log))
		})

		pr.Route("/evaluations/{evaluationID}/feedback", func(er chi.Router) {
			er.With(rbac.Require(rbac.PermFeedbackSubmit)).
				Post("/", SubmitFeedbackHandler(d.Store, d.Embedder, d.Recorder, d.Log))
			er.With(rbac.Require(rbac.PermAnswerView)).
				Get("/", ListFeedbackHandler(d.Store, d.Log))
		})

		pr.Route("/documents", func(dr chi.Router) {
			dr.With(rbac.Require(rbac.PermDocumentView)).Get("/", ListDocumentsHandler(d.Store, d.Log))
			dr.With(rbac.Require(rbac.PermDocumentView)).Get("/{documentID}", GetDocumentHandler(d.Store, d.Log))
			dr.With(rbac.Require(rbac.PermDocumentDelete)).Delete("/{documentID}", DeleteDocumentHandler(d.Store, d.Log))
		})

		pr.With(rbac.Require(rbac.PermDashboardView)).Get("/dashboard/stats", DashboardHandler(d.Store, d.Log))

		if d.Events != nil {
			pr.With(rbac.Require(rbac.PermEventsView)).Get("/events", ListEventsHandler(d.Events, d.Log))
		}
	})
	return r
}

func corsOptions(origins []string) cors.Options {
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}
}

// accessLog writes one structured line per request.
func accessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func readyHandler(st any, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := st.(Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				log.Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
