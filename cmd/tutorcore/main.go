// Command tutorcore wires the tutoring core's collaborators together
// and runs the Dialog Engine behind the public façade until a
// shutdown signal arrives. It owns no business logic: everything here
// is construction, configuration and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/edwarddev/tutorcore/common/id"
	"github.com/edwarddev/tutorcore/common/logger"
	otelsetup "github.com/edwarddev/tutorcore/common/otel"
	"github.com/edwarddev/tutorcore/core/config"
	"github.com/edwarddev/tutorcore/core/db"
	"github.com/edwarddev/tutorcore/internal/dialog"
	"github.com/edwarddev/tutorcore/internal/domain"
	"github.com/edwarddev/tutorcore/internal/errorbook"
	"github.com/edwarddev/tutorcore/internal/fsm"
	"github.com/edwarddev/tutorcore/internal/hint"
	"github.com/edwarddev/tutorcore/internal/knowledge"
	"github.com/edwarddev/tutorcore/internal/llmport"
	"github.com/edwarddev/tutorcore/internal/metrics"
	"github.com/edwarddev/tutorcore/internal/public"
	"github.com/edwarddev/tutorcore/internal/retrieval"
	"github.com/edwarddev/tutorcore/internal/session"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file found, continuing with process environment\n")
	}

	cfg := config.Load()
	logger.Setup(cfg)

	slog.InfoContext(ctx, "tutorcore starting", "env", cfg.Env, "port", cfg.Port)

	telemetry, err := otelsetup.Setup(ctx, cfg.OTel)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	if telemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				slog.ErrorContext(ctx, "telemetry shutdown error", "error", err)
			}
		}()
	}

	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	engine, sessions, err := buildEngine(ctx, cfg, database, redisClient)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build dialog engine", "error", err)
		os.Exit(1)
	}

	facade := public.New(engine, sessions)
	_ = facade // exposed for the (out-of-scope) API layer to mount; exercised directly in tests.

	slog.InfoContext(ctx, "tutorcore ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutdown signal received")

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	evicted := sessions.Cleanup()
	slog.InfoContext(cleanupCtx, "evicted terminal sessions on shutdown", "count", evicted)

	slog.InfoContext(ctx, "shutdown complete")
}

// buildEngine assembles a fully wired Dialog Engine:
// Postgres-backed session persistence,
// a hybrid Qdrant+Typesense retrieval port, an ArangoDB-backed
// knowledge graph, a Redis-backed error book, and either the default
// Ollama LLM Port or the OpenAI-compatible alternate backend.
func buildEngine(ctx context.Context, cfg config.Config, database *db.DB, redisClient *redis.Client) (*dialog.Engine, *session.Store, error) {
	persister := session.NewPostgresPersister(database.Pool())
	sessions := session.New(persister)

	retrievalPort, err := buildRetrievalPort(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	llmPort, structuredAnalyzer := buildLLMPort(cfg)

	var knowledgePort knowledge.Port
	if cfg.Arango.URL != "" {
		arangoPort, err := knowledge.NewArangoPort(ctx, knowledge.ArangoConfig{
			URL:      cfg.Arango.URL,
			Username: cfg.Arango.Username,
			Password: cfg.Arango.Password,
			Database: cfg.Arango.Database,
		})
		if err != nil {
			slog.WarnContext(ctx, "arangodb unavailable, hint ladder will use flat weights", "error", err)
		} else {
			knowledgePort = arangoPort
			slog.InfoContext(ctx, "knowledge graph connected", "database", cfg.Arango.Database)
		}
	}

	errorBook := errorbook.NewRedisPublisher(redisClient, "tutorcore:error_book")

	weights := make(hint.Weights, len(cfg.Hint.Weights))
	for level, w := range cfg.Hint.Weights {
		weights[domain.HintLevel(level)] = w
	}

	dialogCfg := dialog.Config{
		FSM: fsm.Config{
			SilenceThreshold:  cfg.FSM.SilenceThreshold(),
			CoverageThreshold: cfg.FSM.CoverageThreshold,
		},
		HintWeights:            weights,
		HintKeywords:           cfg.Hint.Keywords,
		RetrievalMaxResults:    cfg.Retrieval.MaxResults,
		RetrievalMinSimilarity: cfg.Retrieval.MinSimilarity,
		PromptHistoryTurns:     cfg.Prompt.HistoryTurns,
		PromptMaxRetrievedDocs: cfg.Prompt.MaxRetrievedDocs,
	}

	engine := dialog.New(dialog.Deps{
		Sessions:  sessions,
		Retrieval: retrievalPort,
		LLM:       llmPort,
		Analyzer:  structuredAnalyzer,
		Knowledge: knowledgePort,
		ErrorBook: errorBook,
		Metrics:   metrics.New(weights),
	}, dialogCfg)

	return engine, sessions, nil
}

func buildRetrievalPort(ctx context.Context, cfg config.Config) (retrieval.Port, error) {
	embedder, err := retrieval.NewOpenAIEmbedder(retrieval.OpenAIEmbedderConfig{
		APIKey: cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("tutorcore: build embedder: %w", err)
	}

	qdrantPort, err := retrieval.NewQdrantPort(ctx, retrieval.QdrantConfig{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		APIKey:         cfg.Qdrant.APIKey,
		UseTLS:         cfg.Qdrant.UseTLS,
		CollectionName: cfg.Qdrant.CollectionName,
		VectorSize:     cfg.Qdrant.VectorSize,
	}, embedder)
	if err != nil {
		return nil, fmt.Errorf("tutorcore: build qdrant port: %w", err)
	}
	slog.InfoContext(ctx, "qdrant retrieval backend connected", "collection", cfg.Qdrant.CollectionName)

	typesensePort, err := retrieval.NewTypesensePort(ctx, retrieval.TypesenseConfig{
		Nodes:          []string{cfg.Typesense.Host},
		APIKey:         cfg.Typesense.APIKey,
		CollectionName: cfg.Typesense.Collection,
	})
	if err != nil {
		slog.WarnContext(ctx, "typesense unavailable, retrieval will run vector-only", "error", err)
		return qdrantPort, nil
	}
	slog.InfoContext(ctx, "typesense retrieval backend connected", "collection", cfg.Typesense.Collection)

	return retrieval.NewHybridPort(qdrantPort, typesensePort), nil
}

func buildLLMPort(cfg config.Config) (llmport.Port, *llmport.StructuredAnalyzer) {
	retryCfg := llmport.Config{
		Timeout:        cfg.LLM.Timeout(),
		MaxRetries:     cfg.LLM.MaxRetries,
		EnableFallback: cfg.LLM.EnableFallback,
		FallbackText:   cfg.LLM.FallbackText,
	}

	if cfg.LLM.Backend == "openai" {
		backend := llmport.NewOpenAIPort(llmport.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
		port := llmport.NewRetryingPort(backend, retryCfg)

		analyzer, err := llmport.NewStructuredAnalyzer(llmport.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
		if err != nil {
			analyzer = nil
		}
		return port, analyzer
	}

	backend := llmport.NewOllamaPort(llmport.OllamaConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	return llmport.NewRetryingPort(backend, retryCfg), nil
}
