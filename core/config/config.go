// Package config loads typed configuration from environment variables,
// applying development-friendly defaults when a variable is unset.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edwarddev/tutorcore/core/db"
)

// OTelConfig configures the OpenTelemetry exporters.
type OTelConfig struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Headers        string
}

// Enabled reports whether an OTLP endpoint was configured.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// RedisConfig configures the process-wide Redis client used by the
// error-book publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QdrantConfig configures the default vector-similarity retrieval backend.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	VectorSize     uint64
}

// TypesenseConfig configures the keyword/filter retrieval backend.
type TypesenseConfig struct {
	Host       string
	APIKey     string
	Collection string
}

// ArangoConfig configures the concept knowledge graph backend.
type ArangoConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// LLMConfig controls the LLM Port's retry/timeout/fallback decorator
// and which backend it targets.
type LLMConfig struct {
	Backend        string // "ollama" or "openai"
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
	MaxRetries     int
	EnableFallback bool
	FallbackText   string
}

// Timeout returns TimeoutSeconds as a time.Duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetrievalConfig bounds the Retrieval Port's default query parameters.
type RetrievalConfig struct {
	MaxResults    int
	MinSimilarity float64
}

// PromptConfig bounds the Prompt Composer's context windows.
type PromptConfig struct {
	HistoryTurns     int
	MaxRetrievedDocs int
}

// FSMConfig holds the two thresholds the transition table's conditions
// test against.
type FSMConfig struct {
	SilenceThresholdSeconds float64
	CoverageThreshold       float64
}

// SilenceThreshold returns SilenceThresholdSeconds as a time.Duration.
func (c FSMConfig) SilenceThreshold() time.Duration {
	return time.Duration(c.SilenceThresholdSeconds * float64(time.Second))
}

// HintConfig holds the per-level weights used by the hint-dependency score.
type HintConfig struct {
	Weights  map[int]float64
	Keywords []string
}

// Config holds all application configuration.
type Config struct {
	// Env is the environment name (development, staging, production)
	Env string

	// Port is the HTTP server port (consumed by the API layer, out of
	// this core's scope; carried here only so cmd/tutorcore can surface
	// it to a future server).
	Port string

	// NodeID seeds the snowflake ID generator.
	NodeID int64

	DB        db.Config
	Redis     RedisConfig
	Qdrant    QdrantConfig
	Typesense TypesenseConfig
	Arango    ArangoConfig
	OTel      OTelConfig

	FSM       FSMConfig
	Hint      HintConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Prompt    PromptConfig
}

// Load loads configuration from environment variables.
func Load() Config {
	return Config{
		Env:    getEnv("TUTORCORE_ENV", "development"),
		Port:   getEnv("PORT", "8080"),
		NodeID: int64(getEnvInt("TUTORCORE_NODE_ID", 1)),
		DB: db.Config{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Qdrant: QdrantConfig{
			Host:           getEnv("QDRANT_HOST", "localhost"),
			Port:           getEnvInt("QDRANT_PORT", 6334),
			APIKey:         getEnv("QDRANT_API_KEY", ""),
			UseTLS:         getEnvBool("QDRANT_USE_TLS", false),
			CollectionName: getEnv("QDRANT_COLLECTION", "tutorcore_corpus"),
			VectorSize:     uint64(getEnvInt("QDRANT_VECTOR_SIZE", 1536)),
		},
		Typesense: TypesenseConfig{
			Host:       getEnv("TYPESENSE_HOST", "http://localhost:8108"),
			APIKey:     getEnv("TYPESENSE_API_KEY", ""),
			Collection: getEnv("TYPESENSE_COLLECTION", "tutorcore_corpus"),
		},
		Arango: ArangoConfig{
			URL:      getEnv("ARANGO_URL", "http://localhost:8529"),
			Username: getEnv("ARANGO_USER", "root"),
			Password: getEnv("ARANGO_PASSWORD", ""),
			Database: getEnv("ARANGO_DATABASE", "tutorcore"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "tutorcore"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
		FSM: FSMConfig{
			SilenceThresholdSeconds: getEnvFloat("SILENCE_THRESHOLD_SECONDS", 5.0),
			CoverageThreshold:       getEnvFloat("COVERAGE_THRESHOLD", 0.9),
		},
		Hint: HintConfig{
			Weights:  defaultHintWeights(),
			Keywords: defaultHintKeywords(),
		},
		LLM: LLMConfig{
			Backend:        getEnv("LLM_BACKEND", "ollama"),
			BaseURL:        getEnv("LLM_BASE_URL", "http://localhost:11434"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			Model:          getEnv("LLM_MODEL", "llama3"),
			TimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 30),
			MaxRetries:     getEnvInt("LLM_MAX_RETRIES", 2),
			EnableFallback: getEnvBool("LLM_ENABLE_FALLBACK", true),
			FallbackText:   getEnv("LLM_FALLBACK_TEXT", "I'm having trouble generating a response right now. Let's keep going with what you have so far."),
		},
		Retrieval: RetrievalConfig{
			MaxResults:    getEnvInt("RETRIEVAL_MAX_RESULTS", 5),
			MinSimilarity: getEnvFloat("RETRIEVAL_MIN_SIMILARITY", 0.3),
		},
		Prompt: PromptConfig{
			HistoryTurns:     getEnvInt("PROMPT_HISTORY_TURNS", 5),
			MaxRetrievedDocs: getEnvInt("PROMPT_MAX_RETRIEVED_DOCS", 5),
		},
	}
}

// defaultHintWeights is the per-level weight table for the
// hint-dependency score: Level 1 = 0.2, Level 2 = 0.5, Level 3 = 1.0.
func defaultHintWeights() map[int]float64 {
	return map[int]float64{1: 0.2, 2: 0.5, 3: 1.0}
}

// defaultHintKeywords is the fixed multilingual keyword list the
// hint-request classifier matches against.
func defaultHintKeywords() []string {
	return []string{
		"給我提示", "提示", "幫幫我", "不知道", "不會",
		"hint", "help", "卡住", "想不出來",
	}
}

// buildDSN constructs the database connection string from individual env vars.
func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "tutorcore")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return "postgres://" + user + ":" + password + "@" + host + ":" + port + "/" + name + "?sslmode=" + sslMode
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}
