package http

import (
	"net/http"
	"strconv"

	"github.com/Jayanthmurala/EduAssist/internal/logger"
	"github.com/Jayanthmurala/EduAssist/internal/store"
)

// GET /dashboard/stats
func DashboardHandler(st store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := st.DashboardStats(r.Context(), ownerScope(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /events?type=&limit= lists recent degraded operations.
func ListEventsHandler(ev EventLister, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := ev.Recent(r.Context(), r.URL.Query().Get("type"), limit)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
