package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Jayanthmurala/EduAssist/internal/apierr"
	"github.com/Jayanthmurala/EduAssist/internal/grading"
	"github.com/Jayanthmurala/EduAssist/internal/grading/ocr"
	"github.com/Jayanthmurala/EduAssist/internal/ingest"
	"github.com/Jayanthmurala/EduAssist/internal/llm"
	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/storage"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

const maxJSONBody = 4 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and writes {"error": msg}. Server-side
// failures are logged; client errors are not.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	status, msg := classify(err)
	if status >= 500 {
		logger.OrNop(log).Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func classify(err error) (int, string) {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		return apierr.Status(err), ae.Error()
	case errors.Is(err, grading.ErrMissingFields),
		errors.Is(err, ocr.ErrMissingFields),
		errors.Is(err, ingest.ErrMissingContent),
		errors.Is(err, ingest.ErrNoText),
		errors.Is(err, ingest.ErrUnsupportedType),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, llm.ErrRateLimited.Error()
	case errors.Is(err, grading.ErrParse):
		return http.StatusInternalServerError, grading.ErrParse.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// decodeBody reads a JSON body into v and runs struct validation.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierr.BadRequest("request body is required")
		}
		return apierr.BadRequest("bad json: " + err.Error())
	}
	if err := validate.Struct(v); err != nil {
		return apierr.BadRequest(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		default:
			parts = append(parts, fe.Field()+" failed "+fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
