// Command cardassist runs the corporate card support chatbot server: the
// agent engine with its five specialists, the S3-backed knowledge base and
// the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cardassist/cardassist/agent"
	"github.com/cardassist/cardassist/artifact"
	artifacts3 "github.com/cardassist/cardassist/artifact/s3"
	"github.com/cardassist/cardassist/config"
	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/docstore"
	"github.com/cardassist/cardassist/engine"
	"github.com/cardassist/cardassist/logging"
	"github.com/cardassist/cardassist/metrics"
	"github.com/cardassist/cardassist/mockdata"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/model/anthropic"
	"github.com/cardassist/cardassist/rag"
	"github.com/cardassist/cardassist/rag/vectorstore"
	"github.com/cardassist/cardassist/server"
	"github.com/cardassist/cardassist/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cardassist: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("starting cardassist", "addr", cfg.HTTPAddr, "vector_store", cfg.VectorStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := newSessionStore(ctx, cfg, logger)
	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return err
	}

	docs, err := newDocStore(ctx, cfg)
	if err != nil {
		return err
	}

	kb, err := newKnowledgeBase(ctx, cfg, docs, logger)
	if err != nil {
		return err
	}

	llm := newModel(cfg)

	txns := mockdata.NewTransactionService(time.Now().UnixNano())
	orch, err := agent.NewOrchestrator(
		agent.NewPolicyAgent(llm, kb),
		agent.NewAccountAgent(llm, mockdata.NewAccountService()),
		agent.NewTransactionAgent(llm, txns),
		agent.NewAnalyticsAgent(llm, mockdata.NewAnalyticsService(txns, time.Now().UnixNano())),
		agent.NewEscalationAgent(llm, mockdata.NewTicketService(time.Now().UnixNano())),
	)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	collector := metrics.NewCollector()
	callbacks := engine.NewCallbackManager()
	collector.Register(callbacks)
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackBeforeAgent, logger))
	callbacks.RegisterCallback(engine.NewStateValidationCallback(validateStateDelta))

	eng := engine.New(func(o *engine.Options) {
		o.SessionStore = sessions
		o.ArtifactStore = artifacts
		o.Logger = logger
		o.Callbacks = callbacks
	})
	eng.Register(orch)

	// Initial index runs in the background so startup is not gated on S3
	// and the embedding backend.
	go func() {
		if err := kb.Sync(ctx); err != nil {
			logger.Error("initial knowledge base sync failed", "error", err)
			return
		}
		stats := kb.Stats(ctx)
		logger.Info("knowledge base ready", "documents", stats.DocumentCount, "chunks", stats.ChunkCount)
	}()

	srv := server.New(eng, func(o *server.Options) {
		o.Sessions = sessions
		o.Knowledge = kb
		o.Documents = docs
		o.Metrics = collector
		o.Logger = logger
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *logging.CardAssistLogger {
	level := logging.LogLevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.LogFormat,
		Output:    os.Stdout,
		Component: "cardassist",
	})
}

// newSessionStore prefers Redis and falls back to the in-memory store when
// Redis is unconfigured or unreachable.
func newSessionStore(ctx context.Context, cfg *config.Config, logger logging.Logger) core.SessionStore {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory session store")
		return session.NewInMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	store := session.NewRedisStore(client, session.WithTTL(cfg.SessionTTL.Std()))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, using in-memory session store", "addr", cfg.RedisAddr, "error", err)
		return session.NewInMemoryStore()
	}

	logger.Info("using redis session store", "addr", cfg.RedisAddr)
	return store
}

func newArtifactStore(ctx context.Context, cfg *config.Config) (core.ArtifactStore, error) {
	if cfg.ArtifactBucket == "" {
		return artifact.NewInMemoryStore(), nil
	}
	store, err := artifacts3.NewStore(ctx, cfg.ArtifactBucket, artifacts3.WithPrefix(cfg.ArtifactPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	return store, nil
}

func newDocStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	if cfg.S3Bucket == "" {
		return docstore.NewInMemoryStore(), nil
	}

	var opts []docstore.S3Option
	if cfg.S3Prefix != "" {
		opts = append(opts, docstore.WithPrefix(cfg.S3Prefix))
	}
	if cfg.AWSRegion != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		opts = append(opts, docstore.WithS3Client(awss3.NewFromConfig(awsCfg)))
	}

	store, err := docstore.NewS3Store(ctx, cfg.S3Bucket, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	return store, nil
}

func newKnowledgeBase(ctx context.Context, cfg *config.Config, docs docstore.Store, logger logging.Logger) (*rag.Manager, error) {
	var embedder rag.Embedder
	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
		embedder = rag.NewOpenAIEmbedderFromClient(&client, func(o *rag.OpenAIEmbedderOptions) {
			if cfg.EmbeddingModel != "" {
				o.Model = cfg.EmbeddingModel
			}
		})
	} else {
		embedder = rag.NewOpenAIEmbedder(func(o *rag.OpenAIEmbedderOptions) {
			if cfg.EmbeddingModel != "" {
				o.Model = cfg.EmbeddingModel
			}
		})
	}

	var vectors vectorstore.Store
	if cfg.VectorStore == "weaviate" {
		store, err := vectorstore.NewWeaviateStore(ctx, vectorstore.WeaviateConfig{
			Host:   cfg.WeaviateHost,
			Scheme: cfg.WeaviateScheme,
			APIKey: cfg.WeaviateAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to weaviate: %w", err)
		}
		vectors = store
	} else {
		vectors = vectorstore.NewInMemoryStore()
	}

	return rag.NewManager(docs, embedder, vectors, func(o *rag.ManagerOptions) {
		o.ChunkSize = cfg.ChunkSize
		o.ChunkOverlap = cfg.ChunkOverlap
		o.TopK = cfg.TopK
		// The sidecar only helps when the vectors themselves survive a
		// restart; with the in-memory store it would skip re-embedding
		// documents whose vectors are gone.
		if cfg.VectorStore == "weaviate" {
			o.StatePath = cfg.IndexStatePath
		}
		o.Logger = logger
	}), nil
}

func newModel(cfg *config.Config) model.Model {
	return anthropic.NewModel(func(o *anthropic.Options) {
		if cfg.AnthropicAPIKey != "" {
			o.APIKey = cfg.AnthropicAPIKey
		}
		if cfg.AnthropicModel != "" {
			o.Model = anthropicsdk.Model(cfg.AnthropicModel)
		}
	})
}

// validateStateDelta rejects routing results that would corrupt the session:
// a confidence score outside [0, 1] means a specialist computed garbage and
// the turn should fail loudly rather than persist it.
func validateStateDelta(delta map[string]interface{}) error {
	if v, ok := delta[core.StateConfidenceScore]; ok {
		score, ok := v.(float64)
		if !ok || score < 0 || score > 1 {
			return fmt.Errorf("invalid confidence score: %v", v)
		}
	}

	return nil
}
