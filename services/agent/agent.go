// Copyright (C) 2025 Lautan AI (dev@lautan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/LautanAI/LautanCore/services/agent/routes"
	"github.com/LautanAI/LautanCore/services/agent/tools"
	"github.com/LautanAI/LautanCore/services/audit"
	"github.com/LautanAI/LautanCore/services/goldens"
	"github.com/LautanAI/LautanCore/services/llm"
	"github.com/LautanAI/LautanCore/services/retrieval"
)

// =============================================================================
// Service Interface
// =============================================================================

// Service defines the contract for the agent service lifecycle.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// ServiceConfig holds agent service configuration options.
//
// All fields are optional; zero values use defaults. Values are typically
// populated from environment variables by cmd/lautan.
type ServiceConfig struct {
	// Port is the HTTP server port. Default: 12310.
	Port int

	// Version is reported by /health.
	Version string

	// WeaviateURL is the vector database URL. Empty disables retrieval
	// and the golden answer cache.
	WeaviateURL string

	// OllamaURL is the embedding service URL. Default: http://localhost:11434.
	OllamaURL string

	// EmbedModel is the embedding model name. Default: nomic-embed-text.
	EmbedModel string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: lautan-otel-collector:4317.
	OTelEndpoint string

	// AuditDBPath is the SQLite file for agent traces.
	// Default: ./data/audit.db.
	AuditDBPath string

	// MemoryDBPath is the Badger directory for the memory tool.
	// Empty uses an in-memory store.
	MemoryDBPath string

	// ReferenceDBPath is a read-only SQLite database exposed through the
	// db_query tool. Empty disables the tool.
	ReferenceDBPath string

	// PricingCatalogPath is the service pricing JSON catalog. Empty
	// disables the pricing tool.
	PricingCatalogPath string

	// DocsDir is the sandboxed root for the filesystem tool. Empty
	// disables the tool.
	DocsDir string

	// GatedUserIDs lists user IDs allowed to call gated tools
	// (web_search, db_query, filesystem, memory). Empty denies everyone.
	GatedUserIDs []string

	// ToolTimeout bounds individual tool executions. Default: 30s.
	ToolTimeout time.Duration

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// Loop tunes the reasoning loop (step budget, temperature, top-k).
	Loop Config
}

func applyServiceDefaults(cfg ServiceConfig) ServiceConfig {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = "http://localhost:11434"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "nomic-embed-text"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "lautan-otel-collector:4317"
	}
	if cfg.AuditDBPath == "" {
		cfg.AuditDBPath = "./data/audit.db"
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service wires the full agent stack: model fallback chain, tool registry,
// retriever, golden answer cache, audit store, and the HTTP surface.
//
// # Thread Safety
//
// Thread-safe after construction; all fields are read-only after New()
// returns.
type service struct {
	config        ServiceConfig
	router        *gin.Engine
	orchestrator  *Orchestrator
	chain         *llm.FallbackChain
	weaviate      *weaviate.Client
	auditStore    *audit.Store
	tracerCleanup func(context.Context)
	closers       []func() error
}

// NewService creates a ready-to-run agent service.
//
// # Description
//
// Initialization order:
//  1. OpenTelemetry tracing (fatal on failure)
//  2. Weaviate client (optional; absence disables retrieval and goldens)
//  3. Model backends and fallback chain (fatal if none configured)
//  4. Tool registry with gated tool wrapping
//  5. Audit store (optional; absence disables trace persistence)
//  6. Reasoning loop orchestrator and HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run agent service.
//   - error: Non-nil if a required component fails to initialize.
func NewService(cfg ServiceConfig) (Service, error) {
	s := &service{config: applyServiceDefaults(cfg)}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, running without retrieval",
			"error", err)
	}

	chain, err := s.initChain()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize model chain: %w", err)
	}
	s.chain = chain

	var embedder retrieval.EmbeddingProvider
	if e, err := retrieval.NewOllamaEmbedder(s.config.OllamaURL, s.config.EmbedModel); err != nil {
		slog.Warn("Embedder initialization failed, semantic features disabled",
			"error", err)
	} else {
		embedder = e
	}

	var retriever retrieval.Retriever
	var cache *goldens.Cache
	if s.weaviate != nil && embedder != nil {
		retriever = retrieval.NewWeaviateRetriever(s.weaviate, embedder, nil, nil)
		cache = goldens.NewCache(
			goldens.NewWeaviateClusterStore(s.weaviate, 0), embedder, goldens.Config{})
	}

	registry, err := s.initTools(retriever)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}
	executor := tools.NewExecutor(registry, s.config.ToolTimeout)

	var sink TraceSink
	if store, err := audit.NewStore(s.config.AuditDBPath); err != nil {
		slog.Warn("Audit store initialization failed, traces will not persist",
			"path", s.config.AuditDBPath, "error", err)
	} else {
		s.auditStore = store
		s.closers = append(s.closers, store.Close)
		sink = store
	}

	s.orchestrator, err = NewOrchestrator(chain, registry, executor,
		retriever, cache, sink, s.config.Loop)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a fatal
// server error. In-flight requests get a grace period to drain.
func (s *service) Run() error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting agent server",
			"port", s.config.Port,
			"backends", s.chain.Backends(),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter against the configured
// collector. Uses an insecure gRPC connection, appropriate for internal
// networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("lautan-core")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initWeaviate creates the vector database client if a URL is configured.
// Returns nil (not an error) when the URL is empty; retrieval is optional.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, retrieval disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	s.weaviate = client
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initChain builds the model fallback chain from whichever backends are
// configured. Constructors that fail (missing API key, unreachable host)
// simply contribute no entry; at least one backend must survive.
func (s *service) initChain() (*llm.FallbackChain, error) {
	var backends []llm.Backend

	if anthropic, err := llm.NewAnthropicClient(); err != nil {
		slog.Info("Anthropic backend not configured", "reason", err)
	} else {
		backends = append(backends, anthropic)
	}
	if openai, err := llm.NewOpenAIClient(); err != nil {
		slog.Info("OpenAI backend not configured", "reason", err)
	} else {
		backends = append(backends, openai)
	}
	if ollama, err := llm.NewOllamaClient(); err != nil {
		slog.Info("Ollama backend not configured", "reason", err)
	} else {
		backends = append(backends, ollama)
	}
	if local, err := llm.NewLocalLlamaCppClient(); err != nil {
		slog.Info("Local llama.cpp backend not configured", "reason", err)
	} else {
		backends = append(backends, local)
	}

	return llm.NewFallbackChain(backends, llm.ChainConfig{})
}

// initTools registers the tool surface. Always-on tools (calculator) are
// registered bare; tools touching external data are wrapped with the gated
// allow-list.
func (s *service) initTools(retriever retrieval.Retriever) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	if err := registry.Register(tools.NewCalculatorTool()); err != nil {
		return nil, err
	}

	if retriever != nil {
		if err := registry.Register(tools.NewVectorSearchTool(retriever, s.config.Loop.RetrievalTopK)); err != nil {
			return nil, err
		}
	}

	if s.config.PricingCatalogPath != "" {
		pricing, err := tools.NewPricingTool(s.config.PricingCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("pricing tool: %w", err)
		}
		s.closers = append(s.closers, pricing.Close)
		if err := registry.Register(pricing); err != nil {
			return nil, err
		}
	}

	gated := func(inner tools.Tool) *tools.GatedTool {
		return tools.NewGatedTool(inner, s.config.GatedUserIDs)
	}

	memory, err := tools.NewMemoryTool(s.config.MemoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("memory tool: %w", err)
	}
	s.closers = append(s.closers, memory.Close)
	if err := registry.Register(gated(memory)); err != nil {
		return nil, err
	}

	if err := registry.Register(gated(tools.NewWebSearchTool(""))); err != nil {
		return nil, err
	}

	if s.config.ReferenceDBPath != "" {
		dbTool, err := tools.NewDatabaseQueryTool(s.config.ReferenceDBPath)
		if err != nil {
			return nil, fmt.Errorf("db_query tool: %w", err)
		}
		s.closers = append(s.closers, dbTool.Close)
		if err := registry.Register(gated(dbTool)); err != nil {
			return nil, err
		}
	}

	if s.config.DocsDir != "" {
		fsTool, err := tools.NewFilesystemTool(s.config.DocsDir)
		if err != nil {
			return nil, fmt.Errorf("filesystem tool: %w", err)
		}
		if err := registry.Register(gated(fsTool)); err != nil {
			return nil, err
		}
	}

	slog.Info("Tool registry initialized", "tools", registry.Len())
	return registry, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())

	routes.SetupRoutes(s.router, s.config.Version, s.chain.Backends(), s.orchestrator)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			slog.Warn("Resource close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
