package http

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/storage"
)

// MountAssets serves blobs behind the short-lived links produced by the
// filesystem store. The token in the query string is the only credential,
// so the model provider and <img> tags can fetch without a bearer.
func MountAssets(r chi.Router, bs storage.BlobStore, v AssetVerifier, log *logger.Logger) {
	// GET /assets/*?token=
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		if err := v.Verify(key, r.URL.Query().Get("token")); err != nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
			return
		}
		rc, err := bs.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
				return
			}
			writeError(w, log, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", storage.ContentTypeForKey(key))
		w.Header().Set("Cache-Control", "private, max-age=60")
		_, _ = io.Copy(w, rc)
	})
}
