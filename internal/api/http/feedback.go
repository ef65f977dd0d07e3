package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/events"
	"github.com/Jayanthmurala/EduAssist/internal/grading"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

type feedbackBody struct {
	TeacherScore       *float64 `json:"teacher_score,omitempty" validate:"omitempty,gte=0"`
	TeacherFeedback    *string  `json:"teacher_feedback,omitempty"`
	ScoreAccurate      *bool    `json:"score_accurate,omitempty"`
	WhatAIGotWrong     *string  `json:"what_ai_got_wrong,omitempty"`
	WhatAIMissed       *string  `json:"what_ai_missed,omitempty"`
	ExplanationHelpful *int     `json:"explanation_helpful,omitempty" validate:"omitempty,min=1,max=5"`
}

// POST /evaluations/{evaluationID}/feedback
//
// The stored embedding is of the evaluated answer, keyed the same way the
// grading lookup is, so later similar answers retrieve this correction. Embedding
// is best-effort: without it the feedback is kept but never retrieved.
func SubmitFeedbackHandler(st store.Store, embed Embedder, rec Recorder, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var b feedbackBody
		if err := decodeBody(r, &b); err != nil {
			writeError(w, log, err)
			return
		}
		ev, err := st.GetEvaluation(ctx, chi.URLParam(r, "evaluationID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		ans, err := loadAnswer(ctx, r, st, ev.AnswerID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		if b.TeacherScore != nil && *b.TeacherScore > ans.Question.MaxMarks {
			s := ans.Question.MaxMarks
			b.TeacherScore = &s
		}

		f := store.Feedback{
			EvaluationID:       ev.ID,
			TeacherID:          auth.SubjectFromContext(ctx),
			TeacherScore:       b.TeacherScore,
			TeacherFeedback:    b.TeacherFeedback,
			ScoreAccurate:      b.ScoreAccurate,
			WhatAIGotWrong:     b.WhatAIGotWrong,
			WhatAIMissed:       b.WhatAIMissed,
			ExplanationHelpful: b.ExplanationHelpful,
		}
		if embed != nil {
			var ocrText string
			if ans.OCRText != nil {
				ocrText = *ans.OCRText
			}
			if emb, err := embed.Embed(ctx, grading.FeedbackMatchText(ans.Question.QuestionText, ocrText)); err != nil {
				if rec != nil {
					rec.Record(ctx, events.TypeEmbeddingFailed, ev.ID, err, map[string]any{"stage": "feedback"})
				} else {
					log.Warn("feedback stored without embedding", "evaluation_id", ev.ID, "error", err)
				}
			} else {
				f.Embedding = emb
			}
		}
		if err := st.InsertFeedback(ctx, &f); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

// GET /evaluations/{evaluationID}/feedback (oldest first)
func ListFeedbackHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ev, err := st.GetEvaluation(ctx, chi.URLParam(r, "evaluationID"))
		if err == nil {
			_, err = loadAnswer(ctx, r, st, ev.AnswerID)
		}
		if err != nil {
			writeError(w, log, err)
			return
		}
		fs, err := st.ListFeedback(ctx, ev.ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, fs)
	}
}
