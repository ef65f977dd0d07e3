// Package ocr extracts handwritten text from answer images with a vision
// model and stores it on the answer.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jayanthmurala/EduAssist/internal/events"
	"github.com/Jayanthmurala/EduAssist/internal/llm"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

var (
	ErrMissingFields = errors.New("Missing required fields")
	ErrParse         = errors.New("Failed to parse OCR response")
)

const systemPrompt = `You are a professional OCR engine specializing in handwritten educational content.
Extract all text from the image exactly as written.
Also, provide a confidence score (0-1) for the extraction based on the legibility of the handwriting.
Respond ONLY with a valid JSON object:
{
  "text": "The extracted text...",
  "confidence": 0.95
}`

const userInstruction = "Extract the text from this handwritten answer image."

type Chatter interface {
	Chat(ctx context.Context, msgs []llm.Message, opts llm.ChatOptions) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedModel() string
}

type ResultSink interface {
	SaveOCRResult(ctx context.Context, answerID string, r store.OCRResult) error
}

type Recorder interface {
	Record(ctx context.Context, typ, key string, cause error, fields map[string]any)
}

type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Extractor struct {
	chat   Chatter
	embed  Embedder
	sink   ResultSink
	rec    Recorder
	log    *logger.Logger
	tracer trace.Tracer
}

func NewExtractor(chat Chatter, embed Embedder, sink ResultSink, rec Recorder, log *logger.Logger) *Extractor {
	return &Extractor{
		chat:   chat,
		embed:  embed,
		sink:   sink,
		rec:    rec,
		log:    logger.OrNop(log),
		tracer: otel.Tracer("eduassist/ocr"),
	}
}

// Extract reads the image at imageURL, stores text, confidence and (when it
// can be computed) the text embedding on the answer, and returns the result.
// Model or parse failures return an error and write nothing. There is no retry.
func (x *Extractor) Extract(ctx context.Context, answerID, imageURL string) (Result, error) {
	if strings.TrimSpace(answerID) == "" || strings.TrimSpace(imageURL) == "" {
		return Result{}, ErrMissingFields
	}
	ctx, span := x.tracer.Start(ctx, "ocr.Extract", trace.WithAttributes(attribute.String("answer.id", answerID)))
	defer span.End()
	log := x.log.With("answer_id", answerID)

	content, err := x.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userInstruction, ImageURL: imageURL},
	}, llm.ChatOptions{JSON: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vision call failed")
		return Result{}, err
	}

	var res Result
	if err := llm.DecodeObject(content, &res, "text", "confidence"); err != nil {
		log.Error("unparseable ocr reply", "error", err, "content", content)
		span.SetStatus(codes.Error, "parse failed")
		return Result{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	res.Confidence = clamp01(res.Confidence)

	out := store.OCRResult{Text: res.Text, Confidence: res.Confidence}
	if emb, err := x.embed.Embed(ctx, res.Text); err != nil {
		x.degraded(ctx, answerID, err)
	} else {
		out.Embedding = emb
		out.EmbeddingModel = x.embed.EmbedModel()
	}

	if err := x.sink.SaveOCRResult(ctx, answerID, out); err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("save ocr result: %w", err)
	}
	span.SetAttributes(attribute.Float64("ocr.confidence", res.Confidence), attribute.Bool("ocr.embedded", out.Embedding != nil))
	log.Info("ocr extracted", "confidence", res.Confidence, "chars", len(res.Text))
	return res, nil
}

// Correct replaces the answer's text with a teacher's correction. A
// correction is authoritative, so confidence becomes 1.
func (x *Extractor) Correct(ctx context.Context, answerID, text string) (Result, error) {
	if strings.TrimSpace(answerID) == "" {
		return Result{}, ErrMissingFields
	}
	out := store.OCRResult{Text: text, Confidence: 1}
	if strings.TrimSpace(text) != "" {
		if emb, err := x.embed.Embed(ctx, text); err != nil {
			x.degraded(ctx, answerID, err)
		} else {
			out.Embedding = emb
			out.EmbeddingModel = x.embed.EmbedModel()
		}
	}
	if err := x.sink.SaveOCRResult(ctx, answerID, out); err != nil {
		return Result{}, err
	}
	x.log.Info("ocr corrected", "answer_id", answerID)
	return Result{Text: text, Confidence: 1}, nil
}

func (x *Extractor) degraded(ctx context.Context, answerID string, err error) {
	trace.SpanFromContext(ctx).AddEvent("embedding skipped")
	if x.rec != nil {
		x.rec.Record(ctx, events.TypeEmbeddingFailed, answerID, err, map[string]any{"stage": "ocr"})
		return
	}
	x.log.Warn("embedding skipped", "answer_id", answerID, "error", err)
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
