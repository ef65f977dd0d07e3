package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

type questionBody struct {
	QuestionText string  `json:"question_text" validate:"required"`
	IdealAnswer  string  `json:"ideal_answer" validate:"required"`
	MaxMarks     float64 `json:"max_marks" validate:"gte=0"`
	Subject      *string `json:"subject,omitempty"`
	Difficulty   *string `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
}

func (b questionBody) apply(q *store.Question) {
	q.QuestionText, q.IdealAnswer, q.MaxMarks = b.QuestionText, b.IdealAnswer, b.MaxMarks
	q.Subject, q.Difficulty = b.Subject, b.Difficulty
}

// GET /questions (newest first)
func ListQuestionsHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := st.ListQuestions(r.Context(), listOpts(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

// POST /questions
func CreateQuestionHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b questionBody
		if err := decodeBody(r, &b); err != nil {
			writeError(w, log, err)
			return
		}
		q := store.Question{CreatedBy: auth.SubjectFromContext(r.Context())}
		b.apply(&q)
		if err := st.CreateQuestion(r.Context(), &q); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

func GetQuestionHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := st.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err == nil && !canAccess(r, q.CreatedBy) {
			err = store.ErrNotFound
		}
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// PUT /questions/{questionID}
func UpdateQuestionHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b questionBody
		if err := decodeBody(r, &b); err != nil {
			writeError(w, log, err)
			return
		}
		q, err := st.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err == nil && !canAccess(r, q.CreatedBy) {
			err = store.ErrNotFound
		}
		if err != nil {
			writeError(w, log, err)
			return
		}
		b.apply(&q)
		if err := st.UpdateQuestion(r.Context(), &q); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// DELETE /questions/{questionID} removes the question with its answers and
// their evaluations.
func DeleteQuestionHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := st.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err == nil && !canAccess(r, q.CreatedBy) {
			err = store.ErrNotFound
		}
		if err == nil {
			err = st.DeleteQuestion(r.Context(), q.ID, q.CreatedBy)
		}
		if err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
