package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists. embeddingDim sizes the pgvector
// columns on Postgres; SQLite stores embeddings as JSON text and ignores it.
func Open(ctx context.Context, driver Driver, dsn string, embeddingDim int) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:eduassist.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/eduassist?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer; keeps in-memory databases alive across calls too
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver, embeddingDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver, dim int) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		if dim <= 0 {
			dim = 768
		}
		schema = fmt.Sprintf(schemaPostgres, dim)
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'teacher',
  full_name TEXT,
  institution TEXT,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  question_text TEXT NOT NULL,
  ideal_answer TEXT NOT NULL,
  max_marks REAL NOT NULL DEFAULT 10 CHECK (max_marks > 0),
  subject TEXT,
  difficulty TEXT,
  created_by TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS student_answers (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  image_path TEXT NOT NULL,
  student_name TEXT,
  uploaded_by TEXT NOT NULL,
  uploaded_at INTEGER NOT NULL,
  ocr_text TEXT,
  ocr_confidence REAL CHECK (ocr_confidence IS NULL OR (ocr_confidence >= 0 AND ocr_confidence <= 1)),
  ocr_status TEXT NOT NULL DEFAULT 'pending',
  ocr_error TEXT,
  embedding TEXT,                 -- JSON array of float32
  embedding_model TEXT,
  active_evaluation_id TEXT
);

CREATE TABLE IF NOT EXISTS evaluations (
  id TEXT PRIMARY KEY,
  answer_id TEXT NOT NULL REFERENCES student_answers(id) ON DELETE CASCADE,
  similarity_score REAL NOT NULL,
  concept_coverage REAL NOT NULL,
  final_score REAL NOT NULL,
  marks REAL NOT NULL,
  explanation TEXT NOT NULL DEFAULT '',
  strengths TEXT NOT NULL DEFAULT '',
  weaknesses TEXT NOT NULL DEFAULT '',
  missing_concepts TEXT NOT NULL DEFAULT '[]',
  suggestions TEXT NOT NULL DEFAULT '',
  model_version TEXT NOT NULL,
  evaluated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
  id TEXT PRIMARY KEY,
  evaluation_id TEXT NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
  teacher_id TEXT NOT NULL,
  teacher_score REAL,
  teacher_feedback TEXT,
  score_accurate INTEGER,
  what_ai_got_wrong TEXT,
  what_ai_missed TEXT,
  explanation_helpful INTEGER,
  embedding TEXT,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT,
  file_path TEXT NOT NULL,
  uploaded_by TEXT NOT NULL,
  is_processed INTEGER NOT NULL DEFAULT 0,
  chunk_count INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS document_chunks (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  chunk_index INTEGER NOT NULL,
  chunk_content TEXT NOT NULL,
  embedding TEXT NOT NULL,
  UNIQUE (document_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g. rag_degraded
  key TEXT NOT NULL,                         -- natural key: answer id / document id
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'teacher',
  full_name TEXT,
  institution TEXT,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  question_text TEXT NOT NULL,
  ideal_answer TEXT NOT NULL,
  max_marks DOUBLE PRECISION NOT NULL DEFAULT 10 CHECK (max_marks > 0),
  subject TEXT,
  difficulty TEXT,
  created_by TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS student_answers (
  id TEXT PRIMARY KEY,
  question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
  image_path TEXT NOT NULL,
  student_name TEXT,
  uploaded_by TEXT NOT NULL,
  uploaded_at BIGINT NOT NULL,
  ocr_text TEXT,
  ocr_confidence DOUBLE PRECISION CHECK (ocr_confidence IS NULL OR (ocr_confidence >= 0 AND ocr_confidence <= 1)),
  ocr_status TEXT NOT NULL DEFAULT 'pending',
  ocr_error TEXT,
  embedding vector(%[1]d),
  embedding_model TEXT,
  active_evaluation_id TEXT
);

CREATE TABLE IF NOT EXISTS evaluations (
  id TEXT PRIMARY KEY,
  answer_id TEXT NOT NULL REFERENCES student_answers(id) ON DELETE CASCADE,
  similarity_score DOUBLE PRECISION NOT NULL,
  concept_coverage DOUBLE PRECISION NOT NULL,
  final_score DOUBLE PRECISION NOT NULL,
  marks DOUBLE PRECISION NOT NULL,
  explanation TEXT NOT NULL DEFAULT '',
  strengths TEXT NOT NULL DEFAULT '',
  weaknesses TEXT NOT NULL DEFAULT '',
  missing_concepts TEXT NOT NULL DEFAULT '[]',
  suggestions TEXT NOT NULL DEFAULT '',
  model_version TEXT NOT NULL,
  evaluated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
  id TEXT PRIMARY KEY,
  evaluation_id TEXT NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
  teacher_id TEXT NOT NULL,
  teacher_score DOUBLE PRECISION,
  teacher_feedback TEXT,
  score_accurate BOOLEAN,
  what_ai_got_wrong TEXT,
  what_ai_missed TEXT,
  explanation_helpful INTEGER,
  embedding vector(%[1]d),
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT,
  file_path TEXT NOT NULL,
  uploaded_by TEXT NOT NULL,
  is_processed BOOLEAN NOT NULL DEFAULT FALSE,
  chunk_count INTEGER NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS document_chunks (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  chunk_index INTEGER NOT NULL,
  chunk_content TEXT NOT NULL,
  embedding vector(%[1]d) NOT NULL,
  UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
  ON document_chunks USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS feedback_embedding_idx
  ON feedback USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
