package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/Jayanthmurala/EduAssist/internal/api/http"
	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/config"
	"github.com/Jayanthmurala/EduAssist/internal/db"
	"github.com/Jayanthmurala/EduAssist/internal/events"
	"github.com/Jayanthmurala/EduAssist/internal/grading"
	"github.com/Jayanthmurala/EduAssist/internal/grading/ocr"
	"github.com/Jayanthmurala/EduAssist/internal/ingest"
	"github.com/Jayanthmurala/EduAssist/internal/llm"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/storage"
	"github.com/Jayanthmurala/EduAssist/internal/store"
	"github.com/Jayanthmurala/EduAssist/internal/telemetry"
)

func main() {
	// gateway hash-password <pw> prints a bcrypt hash for ADMIN_PASS_HASH.
	if len(os.Args) == 3 && os.Args[1] == "hash-password" {
		h, err := auth.HashPassword(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg := config.FromEnv()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.FromEnv(cfg.OTelEnabled, string(cfg.Mode)), log)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN, cfg.AI.EmbeddingDim)
	cancel()
	if err != nil {
		log.Fatal("db open failed", "driver", cfg.DBDriver, "error", err)
	}
	st := store.NewSQLStore(dbh, db.Driver(cfg.DBDriver))

	// --- Auth (local JWT) ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)
	if cfg.EnableLocalAuth {
		if _, err := auth.SeedAdmin(ctx, st, cfg.AdminUser, cfg.AdminPassHash); err != nil {
			log.Fatal("seed admin", "error", err)
		}
	}

	// --- Blobs ---
	blobs, closeBlobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Fatal("blob store", "driver", cfg.BlobDriver, "error", err)
	}

	// --- Model API + pipelines ---
	ai := llm.New(cfg.AI)
	if !ai.Configured() {
		log.Warn("AI_API_KEY is not configured; OCR, grading and ingestion will fail until it is set")
	}
	siteID, _ := os.Hostname()
	evs := events.NewRepo(dbh, siteID, log)

	extractor := ocr.NewExtractor(ai, ai, st, evs, log)
	modelImage := func(ctx context.Context, key string) (string, error) {
		return storage.ModelURL(ctx, blobs, key, cfg.SignedURLTTL)
	}
	runner := ocr.NewRunner(extractor, modelImage, st, evs, cfg.OCRWorkers, log)
	pipeline := grading.NewPipeline(ai, ai, st, st,
		grading.WithFeedbackMatch(cfg.RAG.FeedbackMatchThreshold, cfg.RAG.FeedbackMatchCount),
		grading.WithContextMatch(cfg.RAG.ContextMatchThreshold, cfg.RAG.ContextMatchCount),
		grading.WithLogger(log),
		grading.WithRecorder(evs),
	)
	ingester := ingest.NewService(st, ai, cfg.RAG.ChunkSize, log)

	handler := api.NewRouter(api.Deps{
		Store:              st,
		Blobs:              blobs,
		Auth:               authSvc,
		Grader:             pipeline,
		OCR:                extractor,
		OCRQueue:           runner,
		Ingester:           ingester,
		Embedder:           ai,
		Recorder:           evs,
		Events:             evs,
		Log:                log,
		CORSOrigins:        cfg.CORSOrigins,
		SignedURLTTL:       cfg.SignedURLTTL,
		EnableLocalAuth:    cfg.EnableLocalAuth,
		AllowClaimFallback: cfg.Mode == config.ModeOffline,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver, "blobs", cfg.BlobDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := runner.Close(shutCtx); err != nil {
		log.Warn("ocr runner did not drain", "error", err)
	}
	if err := shutdownTracing(shutCtx); err != nil {
		log.Warn("tracing shutdown", "error", err)
	}
	if err := closeBlobs(); err != nil {
		log.Warn("blob store close", "error", err)
	}
	if err := dbh.Close(); err != nil {
		log.Warn("db close", "error", err)
	}
	log.Info("stopped")
}

func openBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, func() error, error) {
	switch cfg.BlobDriver {
	case "gcs":
		g, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case "fs", "":
		fs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL, cfg.AuthHMACSecret)
		if err != nil {
			return nil, nil, err
		}
		fs.SetInlineForModel(cfg.InlineModelImages)
		return fs, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported BLOB_DRIVER %q", cfg.BlobDriver)
	}
}
