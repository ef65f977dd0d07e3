// Package events keeps an append-only log of degraded operations: retrieval
// skipped during grading, embeddings that could not be computed, OCR runs
// that failed. Rows are never updated.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Jayanthmurala/EduAssist/internal/logger"
)

const (
	TypeRAGDegraded     = "rag_degraded"
	TypeEmbeddingFailed = "embedding_failed"
	TypeOCRFailed       = "ocr_failed"
)

type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

type Repo struct {
	db     *sql.DB
	siteID string
	log    *logger.Logger
}

func NewRepo(db *sql.DB, siteID string, log *logger.Logger) *Repo {
	if siteID == "" {
		siteID = "local"
	}
	return &Repo{db: db, siteID: siteID, log: logger.OrNop(log)}
}

func (r *Repo) Append(ctx context.Context, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(buf), time.Now().UnixMilli())
	return err
}

// Record logs a degraded operation at WARN and appends it to the log. It
// never fails the caller; a failed append is itself only logged.
func (r *Repo) Record(ctx context.Context, typ, key string, cause error, fields map[string]any) {
	data := map[string]any{}
	for k, v := range fields {
		data[k] = v
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	r.log.Warn("degraded", "type", typ, "key", key, "error", cause)
	if r.db == nil {
		return
	}
	// detach from the request so a cancelled client still leaves a trace
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.Append(ctx, typ, key, data); err != nil {
		r.log.Error("event log append failed", "type", typ, "key", key, "error", err)
	}
}

// Recent returns up to limit events newest first, optionally filtered by type.
func (r *Repo) Recent(ctx context.Context, typ string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT seq, site_id, typ, key, data, created_at FROM event_log
		WHERE ($1 = '' OR typ = $1)
		ORDER BY seq DESC LIMIT $2`, typ, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		var data string
		var at int64
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &at); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.CreatedAt = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
