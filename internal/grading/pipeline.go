// Package grading runs the retrieval-augmented evaluation of a student's
// answer: retrieve grounding material and past teacher corrections, ask the
// model for a structured verdict, clamp it and store it.
package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Jayanthmurala/EduAssist/internal/events"
	"github.com/Jayanthmurala/EduAssist/internal/llm"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

var (
	ErrMissingFields = errors.New("Missing required fields")
	ErrParse         = errors.New("Failed to parse AI evaluation response")
	ErrStore         = errors.New("Failed to store evaluation")
)

const defaultMaxMarks = 10

type Chatter interface {
	Chat(ctx context.Context, msgs []llm.Message, opts llm.ChatOptions) (string, error)
	ChatModel() string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Retriever interface {
	SimilarFeedback(ctx context.Context, emb store.Vector, threshold float64, limit int) ([]store.FeedbackMatch, error)
	RelevantContext(ctx context.Context, emb store.Vector, threshold float64, limit int, userID string) ([]store.ContextChunk, error)
}

type EvaluationSink interface {
	InsertEvaluation(ctx context.Context, e *store.Evaluation) error
}

// Recorder notes a degraded step. *events.Repo satisfies it.
type Recorder interface {
	Record(ctx context.Context, typ, key string, cause error, fields map[string]any)
}

type Request struct {
	AnswerID     string  `json:"answerId" validate:"required"`
	QuestionText string  `json:"questionText" validate:"required"`
	IdealAnswer  string  `json:"idealAnswer" validate:"required"`
	MaxMarks     float64 `json:"maxMarks"`
	OCRText      string  `json:"ocrText,omitempty"`
	ImageURL     string  `json:"imageUrl,omitempty"`

	// TeacherID scopes reference-material lookup; empty skips it.
	TeacherID string `json:"-"`
}

// Option configures a Pipeline.
type Option func(*settings)

type settings struct {
	FeedbackThreshold float64
	FeedbackLimit     int
	ContextThreshold  float64
	ContextLimit      int
	Log               *logger.Logger
	Recorder          Recorder
	Tracer            trace.Tracer
}

func WithFeedbackMatch(threshold float64, limit int) Option {
	return func(s *settings) { s.FeedbackThreshold, s.FeedbackLimit = threshold, limit }
}

func WithContextMatch(threshold float64, limit int) Option {
	return func(s *settings) { s.ContextThreshold, s.ContextLimit = threshold, limit }
}

func WithLogger(l *logger.Logger) Option { return func(s *settings) { s.Log = l } }
func WithRecorder(r Recorder) Option    { return func(s *settings) { s.Recorder = r } }

type Pipeline struct {
	chat      Chatter
	embed     Embedder
	retriever Retriever
	sink      EvaluationSink
	cfg       settings
	validate  *validator.Validate
}

func NewPipeline(chat Chatter, embed Embedder, retriever Retriever, sink EvaluationSink, opts ...Option) *Pipeline {
	cfg := settings{
		FeedbackThreshold: 0.85,
		FeedbackLimit:     3,
		ContextThreshold:  0.70,
		ContextLimit:      5,
	}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.Log = logger.OrNop(cfg.Log)
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("eduassist/grading")
	}
	return &Pipeline{chat: chat, embed: embed, retriever: retriever, sink: sink, cfg: cfg, validate: validator.New()}
}

// Evaluate grades one answer and stores the evaluation as the answer's
// active one. Retrieval failures degrade to ungrounded grading; model and
// parse failures abort before anything is written.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (store.Evaluation, error) {
	if err := p.validate.Struct(req); err != nil {
		return store.Evaluation{}, ErrMissingFields
	}
	if c, ok := p.chat.(interface{ Configured() bool }); ok && !c.Configured() {
		return store.Evaluation{}, llm.ErrNotConfigured
	}
	maxMarks := req.MaxMarks
	if maxMarks <= 0 {
		maxMarks = defaultMaxMarks
	}
	studentText := req.OCRText
	if studentText == "" {
		studentText = NoTextPlaceholder
	}

	ctx, span := p.cfg.Tracer.Start(ctx, "grading.Evaluate", trace.WithAttributes(
		attribute.String("answer.id", req.AnswerID),
		attribute.Bool("answer.has_text", req.OCRText != ""),
		attribute.Bool("answer.has_image", req.ImageURL != ""),
	))
	defer span.End()
	log := p.cfg.Log.With("answer_id", req.AnswerID)

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}

	chunks, matches := p.retrieve(ctx, req)
	span.SetAttributes(attribute.Int("rag.context_chunks", len(chunks)), attribute.Int("rag.feedback_matches", len(matches)))
	if len(chunks) > 0 {
		log.Debug("grounding with reference material", "chunks", len(chunks))
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: groundingPrompt(chunks)})
	}
	if len(matches) > 0 {
		log.Debug("calibrating with past corrections", "matches", len(matches))
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: calibrationPrompt(matches)})
	}
	msgs = append(msgs, llm.Message{
		Role:     llm.RoleUser,
		Content:  userPrompt(req.QuestionText, req.IdealAnswer, studentText, maxMarks),
		ImageURL: req.ImageURL,
	})

	start := time.Now()
	content, err := p.chat.Chat(ctx, msgs, llm.ChatOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return store.Evaluation{}, err
	}
	log.Debug("model replied", "duration_ms", time.Since(start).Milliseconds())

	var v verdict
	if err := llm.DecodeObject(content, &v, "marks", "final_score"); err != nil {
		log.Error("unparseable evaluation reply", "error", err, "content", content)
		span.SetStatus(codes.Error, "parse failed")
		return store.Evaluation{}, ErrParse
	}
	v = v.clamp(maxMarks)

	ev := store.Evaluation{
		AnswerID:        req.AnswerID,
		SimilarityScore: v.SimilarityScore,
		ConceptCoverage: v.ConceptCoverage,
		FinalScore:      v.FinalScore,
		Marks:           v.Marks,
		Explanation:     v.Explanation,
		Strengths:       v.Strengths,
		Weaknesses:      v.Weaknesses,
		MissingConcepts: v.MissingConcepts,
		Suggestions:     v.Suggestions,
		ModelVersion:    p.chat.ChatModel(),
	}
	if err := p.sink.InsertEvaluation(ctx, &ev); err != nil {
		log.Error("store evaluation", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return store.Evaluation{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	log.Info("answer evaluated", "evaluation_id", ev.ID, "marks", ev.Marks, "max_marks", maxMarks)
	return ev, nil
}

// retrieve runs the two best-effort lookups concurrently. Either may come
// back empty; neither can fail the evaluation.
func (p *Pipeline) retrieve(ctx context.Context, req Request) ([]store.ContextChunk, []store.FeedbackMatch) {
	if p.embed == nil || p.retriever == nil {
		return nil, nil
	}
	var (
		chunks  []store.ContextChunk
		matches []store.FeedbackMatch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emb, err := p.embed.Embed(gctx, FeedbackMatchText(req.QuestionText, req.OCRText))
		if err != nil {
			p.degraded(ctx, req.AnswerID, "feedback_embedding", err)
			return nil
		}
		m, err := p.retriever.SimilarFeedback(gctx, emb, p.cfg.FeedbackThreshold, p.cfg.FeedbackLimit)
		if err != nil {
			p.degraded(ctx, req.AnswerID, "feedback_search", err)
			return nil
		}
		matches = m
		return nil
	})
	if strings.TrimSpace(req.TeacherID) != "" {
		g.Go(func() error {
			emb, err := p.embed.Embed(gctx, req.QuestionText)
			if err != nil {
				p.degraded(ctx, req.AnswerID, "context_embedding", err)
				return nil
			}
			c, err := p.retriever.RelevantContext(gctx, emb, p.cfg.ContextThreshold, p.cfg.ContextLimit, req.TeacherID)
			if err != nil {
				p.degraded(ctx, req.AnswerID, "context_search", err)
				return nil
			}
			chunks = c
			return nil
		})
	}
	_ = g.Wait()
	return chunks, matches
}

func (p *Pipeline) degraded(ctx context.Context, answerID, stage string, err error) {
	trace.SpanFromContext(ctx).AddEvent("rag degraded", trace.WithAttributes(
		attribute.String("stage", stage), attribute.String("error", err.Error())))
	if p.cfg.Recorder != nil {
		p.cfg.Recorder.Record(ctx, events.TypeRAGDegraded, answerID, err, map[string]any{"stage": stage})
		return
	}
	p.cfg.Log.Warn("retrieval skipped", "answer_id", answerID, "stage", stage, "error", err)
}
