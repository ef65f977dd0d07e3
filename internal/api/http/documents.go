package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

// ChunkReader is implemented by stores that can return a document's chunk
// text in order.
type ChunkReader interface {
	ChunkContents(ctx context.Context, documentID string) ([]string, error)
}

func ListDocumentsHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := st.ListDocuments(r.Context(), ownerScope(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

// GET /documents/{documentID} returns the document and, when the store can
// read them, its chunks in order.
func GetDocumentHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := st.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
		if err == nil && !canAccess(r, d.UploadedBy) {
			err = store.ErrNotFound
		}
		if err != nil {
			writeError(w, log, err)
			return
		}
		out := struct {
			store.Document
			Chunks []string `json:"chunks,omitempty"`
		}{Document: d}
		if cr, ok := st.(ChunkReader); ok {
			if out.Chunks, err = cr.ChunkContents(r.Context(), d.ID); err != nil {
				writeError(w, log, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DELETE /documents/{documentID}; chunks go with it.
func DeleteDocumentHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.DeleteDocument(r.Context(), chi.URLParam(r, "documentID"), ownerScope(r)); err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
