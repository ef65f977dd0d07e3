// Package ingest turns teacher reference material into embedded chunks used
// to ground grading.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Jayanthmurala/EduAssist/internal/llm"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

var (
	ErrMissingContent = errors.New("Missing textContent or fileUrl")
	ErrNoText         = errors.New("no text content to ingest")
)

const (
	defaultTitle = "Untitled Document"
	textUpload   = "text-upload"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, d *store.Document) error
	InsertChunk(ctx context.Context, c *store.DocumentChunk) error
	MarkDocumentProcessed(ctx context.Context, id string, chunkCount int) error
}

type Request struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	TextContent string  `json:"textContent,omitempty"`
	FileURL     string  `json:"fileUrl,omitempty"`
}

type Response struct {
	Success         bool   `json:"success"`
	ChunksProcessed int    `json:"chunks_processed"`
	DocumentID      string `json:"document_id"`
}

type Service struct {
	store     DocumentStore
	embed     Embedder
	hc        *http.Client
	chunkSize int
	log       *logger.Logger
	tracer    trace.Tracer
}

func NewService(st DocumentStore, embed Embedder, chunkSize int, log *logger.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{
		store:     st,
		embed:     embed,
		hc:        &http.Client{Timeout: 60 * time.Second},
		chunkSize: chunkSize,
		log:       logger.OrNop(log),
		tracer:    otel.Tracer("eduassist/ingest"),
	}
}

// WithHTTPClient replaces the client used to fetch fileUrl.
func (s *Service) WithHTTPClient(hc *http.Client) *Service {
	s.hc = hc
	return s
}

// Ingest stores the document, then embeds and writes its chunks one at a
// time in order. The document is marked processed only after the last
// chunk is written; an error part way leaves it unprocessed with the chunks
// written so far.
func (s *Service) Ingest(ctx context.Context, teacherID string, req Request) (Response, error) {
	if strings.TrimSpace(req.TextContent) == "" && strings.TrimSpace(req.FileURL) == "" {
		return Response{}, ErrMissingContent
	}
	if c, ok := s.embed.(interface{ Configured() bool }); ok && !c.Configured() {
		return Response{}, llm.ErrNotConfigured
	}
	ctx, span := s.tracer.Start(ctx, "ingest.Ingest")
	defer span.End()

	text := req.TextContent
	if text == "" {
		var err error
		if text, err = FetchText(ctx, s.hc, req.FileURL); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			return Response{}, err
		}
	}
	chunks := SplitText(text, s.chunkSize)
	if len(chunks) == 0 {
		return Response{}, ErrNoText
	}

	doc := store.Document{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		FilePath:    req.FileURL,
		UploadedBy:  teacherID,
	}
	if doc.Title == "" {
		doc.Title = defaultTitle
	}
	if doc.FilePath == "" {
		doc.FilePath = textUpload
	}
	if err := s.store.CreateDocument(ctx, &doc); err != nil {
		return Response{}, fmt.Errorf("create document: %w", err)
	}
	span.SetAttributes(attribute.String("document.id", doc.ID), attribute.Int("document.chunks", len(chunks)))
	log := s.log.With("document_id", doc.ID)
	log.Info("ingesting document", "chunks", len(chunks), "chars", len(text))

	for i, content := range chunks {
		emb, err := s.embed.Embed(ctx, content)
		if err != nil {
			log.Error("embed chunk", "chunk_index", i, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "embedding failed")
			return Response{}, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		c := store.DocumentChunk{DocumentID: doc.ID, ChunkIndex: i, Content: content, Embedding: emb}
		if err := s.store.InsertChunk(ctx, &c); err != nil {
			log.Error("insert chunk", "chunk_index", i, "error", err)
			return Response{}, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	if err := s.store.MarkDocumentProcessed(ctx, doc.ID, len(chunks)); err != nil {
		return Response{}, fmt.Errorf("mark processed: %w", err)
	}
	log.Info("document processed", "chunks", len(chunks))
	return Response{Success: true, ChunksProcessed: len(chunks), DocumentID: doc.ID}, nil
}
