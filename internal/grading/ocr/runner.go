package ocr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Jayanthmurala/EduAssist/internal/events"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

var ErrRunnerClosed = errors.New("ocr runner closed")

type StatusSink interface {
	SetOCRStatus(ctx context.Context, answerID string, status store.OCRStatus, errMsg string) error
}

// ImageResolver turns a stored image key into a URL the vision model can
// read, typically a short-lived signed URL.
type ImageResolver func(ctx context.Context, key string) (string, error)

type extractFunc func(ctx context.Context, answerID, imageURL string) (Result, error)

// Runner extracts text in the background after upload. At most `workers`
// extractions run at once; the image URL is resolved only once a slot is
// held so a queued job never carries an expired link. A failure is written
// onto the answer as ocr_status=failed with the error text.
type Runner struct {
	extract extractFunc
	resolve ImageResolver
	status  StatusSink
	rec     Recorder
	log     *logger.Logger
	timeout time.Duration

	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewRunner(x *Extractor, resolve ImageResolver, status StatusSink, rec Recorder, workers int, log *logger.Logger) *Runner {
	return newRunner(x.Extract, resolve, status, rec, workers, log)
}

// newRunner with a nil resolve passes keys through as URLs.
func newRunner(fn extractFunc, resolve ImageResolver, status StatusSink, rec Recorder, workers int, log *logger.Logger) *Runner {
	if resolve == nil {
		resolve = func(_ context.Context, key string) (string, error) { return key, nil }
	}
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		extract: fn,
		resolve: resolve,
		status:  status,
		rec:     rec,
		log:     logger.OrNop(log),
		timeout: 2 * time.Minute,
		sem:     make(chan struct{}, workers),
	}
}

// Dispatch queues an extraction of the image stored under imageKey and
// returns immediately.
func (r *Runner) Dispatch(answerID, imageKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	go r.run(answerID, imageKey)
	return nil
}

func (r *Runner) run(answerID, imageKey string) {
	defer r.wg.Done()
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("ocr panic: %v", p)
			}
		}()
		var imageURL string
		if imageURL, err = r.resolve(ctx, imageKey); err != nil {
			err = fmt.Errorf("resolve image: %w", err)
			return
		}
		_, err = r.extract(ctx, answerID, imageURL)
	}()
	if err == nil {
		return
	}

	if r.rec != nil {
		r.rec.Record(ctx, events.TypeOCRFailed, answerID, err, nil)
	} else {
		r.log.Warn("ocr failed", "answer_id", answerID, "error", err)
	}
	if serr := r.status.SetOCRStatus(context.WithoutCancel(ctx), answerID, store.OCRFailed, err.Error()); serr != nil {
		r.log.Error("mark ocr failed", "answer_id", answerID, "error", serr)
	}
}

// Close stops accepting work and waits for running extractions or ctx.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
