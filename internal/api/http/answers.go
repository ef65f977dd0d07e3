package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jayanthmurala/EduAssist/internal/apierr"
	auth "github.com/Jayanthmurala/EduAssist/internal/auth/middleware"
	"github.com/Jayanthmurala/EduAssist/internal/grading"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/preprocess"
	"github.com/Jayanthmurala/EduAssist/internal/storage"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

// POST /answers (multipart: question_id, student_name?, enhance?, file)
//
// Validates the question before anything is written, stores the image,
// creates the answer in the pending OCR state and queues extraction. The
// response does not wait for OCR.
func UploadAnswerHandler(st store.Store, bs storage.BlobStore, queue OCRDispatcher, maxBytes int64, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeError(w, log, apierr.BadRequest("expected multipart/form-data: "+err.Error()))
			return
		}
		defer r.MultipartForm.RemoveAll()

		questionID := strings.TrimSpace(r.FormValue("question_id"))
		if questionID == "" {
			writeError(w, log, apierr.BadRequest("question_id is required"))
			return
		}
		q, err := st.GetQuestion(ctx, questionID)
		if err == nil && !canAccess(r, q.CreatedBy) {
			err = store.ErrNotFound
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, log, apierr.BadRequest("question not found"))
			return
		}
		if err != nil {
			writeError(w, log, err)
			return
		}

		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, log, apierr.BadRequest("file is required"))
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if int64(len(data)) > maxBytes {
			writeError(w, log, apierr.New(http.StatusRequestEntityTooLarge, "too_large", errors.New("file too large")))
			return
		}
		contentType := imageContentType(hdr.Header.Get("Content-Type"), data)
		if contentType == "" {
			writeError(w, log, apierr.BadRequest("file must be an image"))
			return
		}
		if on, _ := strconv.ParseBool(r.FormValue("enhance")); on {
			var enhanced bool
			data, contentType, enhanced = preprocess.EnhanceOrOriginal(data, contentType)
			if !enhanced {
				log.Warn("image enhancement skipped; storing original", "filename", hdr.Filename)
			}
		}

		uploader := auth.SubjectFromContext(ctx)
		key := "answers/" + uploader + "/" + uuid.NewString() + storage.ExtForContentType(contentType)
		key, err = bs.Put(ctx, key, bytes.NewReader(data), contentType)
		if err != nil {
			writeError(w, log, err)
			return
		}

		a := store.StudentAnswer{QuestionID: q.ID, ImagePath: key, UploadedBy: uploader}
		if name := strings.TrimSpace(r.FormValue("student_name")); name != "" {
			a.StudentName = &name
		}
		if err := st.CreateAnswer(ctx, &a); err != nil {
			if derr := bs.Delete(context.WithoutCancel(ctx), key); derr != nil {
				log.Warn("orphaned blob", "key", key, "error", derr)
			}
			writeError(w, log, err)
			return
		}

		dispatchOCR(ctx, st, queue, a.ID, key, log)
		writeJSON(w, http.StatusCreated, a)
	}
}

// dispatchOCR queues extraction of the stored image; a failure to queue is
// written onto the answer as a failed OCR run.
func dispatchOCR(ctx context.Context, st store.Store, queue OCRDispatcher, answerID, key string, log *logger.Logger) {
	err := queue.Dispatch(answerID, key)
	if err == nil {
		return
	}
	log.Error("ocr dispatch", "answer_id", answerID, "error", err)
	if serr := st.SetOCRStatus(context.WithoutCancel(ctx), answerID, store.OCRFailed, err.Error()); serr != nil {
		log.Error("mark ocr failed", "answer_id", answerID, "error", serr)
	}
}

// imageContentType trusts the declared type when it is an image and falls
// back to sniffing. Empty means the upload is not an image.
func imageContentType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}

// GET /answers?question_id=&limit=&offset=
func ListAnswersHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		as, err := st.ListAnswers(r.Context(), listOpts(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, as)
	}
}

func GetAnswerHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := loadAnswer(r.Context(), r, st, chi.URLParam(r, "answerID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /answers/{answerID}/image-url
func AnswerImageURLHandler(st store.Store, bs storage.BlobStore, ttl time.Duration, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := loadAnswer(r.Context(), r, st, chi.URLParam(r, "answerID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		u, err := bs.SignedURL(r.Context(), v.ImagePath, ttl)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": u, "expires_in": int(ttl.Seconds())})
	}
}

// POST /answers/{answerID}/ocr queues a fresh extraction.
func RetryOCRHandler(st store.Store, queue OCRDispatcher, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		v, err := loadAnswer(ctx, r, st, chi.URLParam(r, "answerID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if err := st.SetOCRStatus(ctx, v.ID, store.OCRPending, ""); err != nil {
			writeError(w, log, err)
			return
		}
		dispatchOCR(ctx, st, queue, v.ID, v.ImagePath, log)
		writeJSON(w, http.StatusAccepted, map[string]any{"id": v.ID, "ocr_status": store.OCRPending})
	}
}

type correctOCRRequest struct {
	Text *string `json:"ocr_text" validate:"required"`
}

// PUT /answers/{answerID}/ocr {ocr_text}
func CorrectOCRHandler(x OCRService, st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req correctOCRRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		v, err := loadAnswer(r.Context(), r, st, chi.URLParam(r, "answerID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		res, err := x.Correct(r.Context(), v.ID, *req.Text)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "ocr": res})
	}
}

// POST /answers/{answerID}/evaluate grades a stored answer. The request is
// assembled from the answer, its question and its image; reference material
// comes from the answer owner's documents.
func EvaluateStoredAnswerHandler(g Evaluator, st store.Store, bs storage.BlobStore, ttl time.Duration, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		v, err := loadAnswer(ctx, r, st, chi.URLParam(r, "answerID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		req := grading.Request{
			AnswerID:     v.ID,
			QuestionText: v.Question.QuestionText,
			IdealAnswer:  v.Question.IdealAnswer,
			MaxMarks:     v.Question.MaxMarks,
			TeacherID:    v.UploadedBy,
		}
		if v.OCRText != nil {
			req.OCRText = *v.OCRText
		}
		if u, err := storage.ModelURL(ctx, bs, v.ImagePath, ttl); err != nil {
			log.Warn("answer image unavailable; grading from text only", "answer_id", v.ID, "error", err)
		} else {
			req.ImageURL = u
		}
		ev, err := g.Evaluate(ctx, req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "evaluation": ev})
	}
}

// GET /answers/{answerID}/evaluations (newest first)
func ListEvaluationsHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := loadAnswer(r.Context(), r, st, chi.URLParam(r, "answerID"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		evs, err := st.ListEvaluations(r.Context(), v.ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, evs)
	}
}
