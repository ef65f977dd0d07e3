package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Gemini exposes an OpenAI-compatible surface; any other compatible
// endpoint can be selected with AI_BASE_URL.
const defaultAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string
	LogMode   string

	DBDriver string
	DBDSN    string

	BlobDriver   string // fs|gcs
	BlobBasePath string // for fs
	GCSBucket    string
	SignedURLTTL time.Duration
	// InlineModelImages sends fs-backed images to the model as data URLs,
	// for hosts whose PUBLIC_URL the model provider cannot reach.
	InlineModelImages bool

	AuthHMACSecret  string
	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOrigins []string

	AI AIConfig
	RAG RAGConfig

	OCRWorkers  int
	OTelEnabled bool
}

type AIConfig struct {
	APIKey       string
	BaseURL      string
	ChatModel    string
	EmbedModel   string
	EmbeddingDim int
}

// RAGConfig holds the retrieval knobs of the grading pipeline and the
// document chunk budget.
type RAGConfig struct {
	ChunkSize              int
	FeedbackMatchThreshold float64
	FeedbackMatchCount     int
	ContextMatchThreshold  float64
	ContextMatchCount      int
}

// FromEnv loads .env (if present) and reads the process environment.
func FromEnv() Config {
	_ = godotenv.Load()

	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	pub := strings.TrimSuffix(os.Getenv("PUBLIC_URL"), "/")
	if pub == "" {
		pub = "http://localhost:8080"
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("AI_API_KEY")
	}
	return Config{
		Mode:      mode,
		HTTPAddr:  envOr("HTTP_ADDR", ":8080"),
		PublicURL: pub,
		LogMode:   envOr("LOG_MODE", "dev"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		BlobDriver:   envOr("BLOB_DRIVER", "fs"),
		BlobBasePath: envOr("BLOB_BASE_PATH", "./data"),
		GCSBucket:    os.Getenv("GCS_BUCKET"),
		SignedURLTTL: envDuration("SIGNED_URL_TTL", 300*time.Second),

		InlineModelImages: envBool("INLINE_MODEL_IMAGES", true),

		AuthHMACSecret:  envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth: envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:       envOr("ADMIN_USER", "admin"),
		AdminPassHash:   envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),

		CORSOrigins: csvOr("CORS_ORIGINS", "*"),

		AI: AIConfig{
			APIKey:       apiKey,
			BaseURL:      envOr("AI_BASE_URL", defaultAIBaseURL),
			ChatModel:    envOr("AI_CHAT_MODEL", "gemini-2.0-flash"),
			EmbedModel:   envOr("AI_EMBED_MODEL", "text-embedding-004"),
			EmbeddingDim: envInt("EMBEDDING_DIM", 768),
		},
		RAG: RAGConfig{
			ChunkSize:              envInt("CHUNK_SIZE", 800),
			FeedbackMatchThreshold: envFloat("FEEDBACK_MATCH_THRESHOLD", 0.85),
			FeedbackMatchCount:     envInt("FEEDBACK_MATCH_COUNT", 3),
			ContextMatchThreshold:  envFloat("CONTEXT_MATCH_THRESHOLD", 0.70),
			ContextMatchCount:      envInt("CONTEXT_MATCH_COUNT", 5),
		},

		OCRWorkers:  envInt("OCR_WORKERS", 4),
		OTelEnabled: envBool("OTEL_ENABLED", false),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// envDuration accepts Go durations ("5m") or bare seconds ("300").
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
