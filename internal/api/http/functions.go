package http

import (
	"net/http"

	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/grading"
	"github.com/Jayanthmurala/EduAssist/internal/ingest"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

// POST /functions/evaluate-answer
//
// {answerId, questionText, idealAnswer, maxMarks?, ocrText?, imageUrl?}
// Reference material is looked up among the caller's documents.
func EvaluateAnswerHandler(g Evaluator, st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grading.Request
		if err := decodeBody(r, &req); err != nil {
			writeError(w, log, grading.ErrMissingFields)
			return
		}
		if _, err := loadAnswer(r.Context(), r, st, req.AnswerID); err != nil {
			writeError(w, log, err)
			return
		}
		req.TeacherID = auth.SubjectFromContext(r.Context())
		ev, err := g.Evaluate(r.Context(), req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "evaluation": ev})
	}
}

type processOCRRequest struct {
	AnswerID string `json:"answerId" validate:"required"`
	ImageURL string `json:"imageUrl" validate:"required"`
}

// POST /functions/process-ocr runs extraction synchronously.
func ProcessOCRHandler(x OCRService, st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processOCRRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		if _, err := loadAnswer(r.Context(), r, st, req.AnswerID); err != nil {
			writeError(w, log, err)
			return
		}
		res, err := x.Extract(r.Context(), req.AnswerID, req.ImageURL)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "ocr": res})
	}
}

// POST /functions/ingest-document
func IngestDocumentHandler(in Ingester, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.Request
		if err := decodeBody(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		res, err := in.Ingest(r.Context(), auth.SubjectFromContext(r.Context()), req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
