package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"document-intelligence/internal/chromemdb"
	"document-intelligence/internal/chunker"
	"document-intelligence/internal/config"
	"document-intelligence/internal/db"
	"document-intelligence/internal/embedding"
	"document-intelligence/internal/health"
	"document-intelligence/internal/helper"
	"document-intelligence/internal/llmservice"
	"document-intelligence/internal/logger"
	"document-intelligence/internal/metrics"
	"document-intelligence/internal/models"
	"document-intelligence/internal/parser"
	"document-intelligence/internal/pipeline"
	"document-intelligence/internal/queue"
	"document-intelligence/internal/rag"
	"document-intelligence/internal/telemetry"
)

const configFilePath = "./configs/config.yaml"

// documentStore is what both store backends provide.
type documentStore interface {
	pipeline.Store
	rag.Searcher
	InitSchema(ctx context.Context) error
	RegisterDocument(ctx context.Context, meta models.DocumentMetadata) error
	GetDocumentStatus(ctx context.Context, documentID uuid.UUID) (models.ProcessingStatus, error)
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
	Close() error
}

var (
	_ documentStore = (*db.Store)(nil)
	_ documentStore = (*chromemdb.Store)(nil)
)

type flags struct {
	configPath string
	filePath   string
	workspace  string
	user       string
	documentID string
	enqueue    bool
	query      string
	threshold  float64
	limit      int
	answer     bool
	chunks     string
	deleteID   string
	health     bool
	worker     bool
	initDB     bool
	dryRun     bool
	export     bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", configFilePath, "Path to the config file")
	flag.StringVar(&f.filePath, "file", "", "Path to the document file to process")
	flag.StringVar(&f.workspace, "workspace", "default", "Workspace id")
	flag.StringVar(&f.user, "user", "cli", "User id")
	flag.StringVar(&f.documentID, "document-id", "", "Document id (generated when empty)")
	flag.BoolVar(&f.enqueue, "enqueue", false, "Enqueue the file for the worker instead of processing inline")
	flag.StringVar(&f.query, "query", "", "Query to search for")
	flag.Float64Var(&f.threshold, "threshold", -1, "Similarity threshold (config default when negative)")
	flag.IntVar(&f.limit, "limit", 0, "Maximum number of results (config default when zero)")
	flag.BoolVar(&f.answer, "answer", false, "Generate an answer from the search results")
	flag.StringVar(&f.chunks, "chunks", "", "List the chunks of a document id")
	flag.StringVar(&f.deleteID, "delete", "", "Delete a document id and its chunks")
	flag.BoolVar(&f.health, "health", false, "Run the health check")
	flag.BoolVar(&f.worker, "worker", false, "Run the queue worker")
	flag.BoolVar(&f.initDB, "init-db", false, "Create the database schema")
	flag.BoolVar(&f.dryRun, "dry-run", false, "Convert and chunk only, do not embed or store")
	flag.BoolVar(&f.export, "export", false, "Export the chromem store to an encrypted file")
	flag.Parse()
	return f
}

func main() {
	os.Exit(run(parseFlags()))
}

// run executes one command and returns the process exit code. Deferred
// cleanup runs before it returns.
func run(f flags) int {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		log.Error().Err(err).Msg("Error loading config")
		return 1
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, WithCaller: cfg.Log.WithCaller})
	log.Debug().Str("store", cfg.Store.Backend).Str("embedding_provider", cfg.EmbedLLM.Provider).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, cfg.Telemetry.SampleRatio)
		if err != nil {
			log.Error().Err(err).Msg("Error initializing tracer")
			return 1
		}
		defer shutdown(context.Background())
	}

	if f.dryRun {
		if err := dryRun(ctx, cfg, f.filePath); err != nil {
			log.Error().Err(err).Msg("Dry run failed")
			return 1
		}
		return 0
	}

	app, err := newApp(ctx, cfg, f.chatNeeded())
	if err != nil {
		log.Error().Err(err).Msg("Error initializing")
		return 1
	}
	defer app.Close()

	if err := app.dispatch(ctx, f); err != nil {
		log.Error().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}

func (f flags) chatNeeded() bool {
	return f.answer && f.query != ""
}

// app holds the clients shared by every command.
type app struct {
	cfg      *config.Config
	store    documentStore
	embedder *embedding.Service
	pipeline *pipeline.Service
	rag      *rag.RAG
	health   *health.Checker
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, withChat bool) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(a.registry)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	provider, closeProvider, err := embedding.NewProvider(ctx, cfg.EmbedLLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	a.closers = append(a.closers, closeProvider)

	opts := []embedding.Option{
		embedding.WithTimeout(cfg.EmbedLLM.Timeout),
		embedding.WithRateLimit(cfg.EmbedLLM.RateLimit, cfg.EmbedLLM.Burst),
		embedding.WithMetrics(m),
	}
	if cfg.Cache.RedisURL != "" {
		rdb, err := embedding.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Embedding cache unavailable, continuing without it")
		} else {
			a.closers = append(a.closers, rdb.Close)
			opts = append(opts, embedding.WithCache(embedding.NewRedisCache(rdb, cfg.Cache.TTL)))
		}
	}
	a.embedder = embedding.NewService(provider, cfg.EmbedLLM.Model, cfg.EmbedLLM.Dimension, opts...)

	a.pipeline = pipeline.NewService(parser.NewConverter(), newChunker(cfg), a.embedder, a.store, pipeline.WithMetrics(m))

	ragOpts := []rag.Option{rag.WithMetrics(m)}
	if withChat {
		chat, err := llmservice.NewClient(ctx, cfg.ChatLLM)
		if err != nil {
			a.Close()
			return nil, err
		}
		ragOpts = append(ragOpts, rag.WithCompleter(chat))
	}
	a.rag = rag.NewRAG(a.embedder, a.store, ragOpts...)
	a.health = health.NewChecker(a.store, a.embedder, a.embedder.Dimension())
	return a, nil
}

func openStore(cfg *config.Config) (documentStore, error) {
	switch cfg.Store.Backend {
	case "chromem":
		if !cfg.Store.InMemory {
			if err := helper.CreateFolder(cfg.Store.ChromemPath); err != nil {
				return nil, err
			}
		}
		s, err := chromemdb.New(cfg.Store)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		return s, nil
	}
}

func newChunker(cfg *config.Config) *chunker.Chunker {
	return chunker.New(
		chunker.WithTokenBudget(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		chunker.WithEncoding(cfg.RAG.EncodingName),
		chunker.WithFallbackSize(cfg.RAG.FallbackChunkSize),
	)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Error closing client")
		}
	}
}

func (a *app) dispatch(ctx context.Context, f flags) error {
	if f.filePath != "" && f.query != "" {
		return errors.New("provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	switch {
	case f.initDB:
		return a.store.InitSchema(ctx)
	case f.worker:
		return a.runWorker(ctx)
	case f.filePath != "":
		return a.process(ctx, f)
	case f.query != "":
		return a.search(ctx, f)
	case f.chunks != "":
		return a.listChunks(ctx, f.chunks)
	case f.deleteID != "":
		return a.deleteDocument(ctx, f.deleteID)
	case f.health:
		report := a.health.Check(ctx)
		helper.PrettyPrint(report)
		if report.Status != models.HealthHealthy {
			return errors.New(report.Error)
		}
		return nil
	case f.export:
		return a.exportStore(ctx)
	default:
		flag.Usage()
		return errors.New("no command given")
	}
}

func (a *app) process(ctx context.Context, f flags) error {
	id, err := helper.DocumentID(f.documentID)
	if err != nil {
		return err
	}
	meta, err := helper.FileMetadata(f.filePath, id, f.workspace, f.user)
	if err != nil {
		return err
	}
	if err := a.store.RegisterDocument(ctx, meta); err != nil {
		return fmt.Errorf("error registering document: %w", err)
	}

	if f.enqueue {
		client := queue.NewClient(a.cfg.Queue)
		defer client.Close()
		taskID, err := client.Enqueue(ctx, meta, meta.FilePath)
		if err != nil {
			return err
		}
		helper.PrettyPrint(map[string]string{"document_id": id.String(), "task_id": taskID})
		return nil
	}

	result := a.pipeline.ProcessDocument(ctx, meta, meta.FilePath)
	helper.PrettyPrint(result)
	if result.Status != models.StatusProcessed {
		return errors.New(result.Message)
	}
	return nil
}

func (a *app) search(ctx context.Context, f flags) error {
	req := models.SearchRequest{
		Query:               f.query,
		WorkspaceID:         f.workspace,
		SimilarityThreshold: a.cfg.RAG.Threshold,
		MaxResults:          a.cfg.RAG.MaxResults,
	}
	if f.threshold >= 0 {
		req.SimilarityThreshold = f.threshold
	}
	if f.limit > 0 {
		req.MaxResults = f.limit
	}

	if !f.answer {
		helper.PrettyPrint(a.rag.Search(ctx, req))
		return nil
	}

	response, err := a.rag.Answer(ctx, req)
	if err != nil {
		return err
	}
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Query)
	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Source)
	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
	return nil
}

func (a *app) listChunks(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", rawID, err)
	}
	status, err := a.store.GetDocumentStatus(ctx, id)
	if err != nil {
		return err
	}
	helper.PrettyPrint(map[string]interface{}{
		"document_id": id,
		"status":      status,
		"chunks":      a.pipeline.GetDocumentChunks(ctx, id),
	})
	return nil
}

func (a *app) deleteDocument(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", rawID, err)
	}
	if err := a.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	log.Info().Str("document_id", id.String()).Msg("Document deleted")
	return nil
}

func (a *app) exportStore(ctx context.Context) error {
	s, ok := a.store.(*chromemdb.Store)
	if !ok {
		return errors.New("-export needs the chromem store backend")
	}
	path, err := s.Export(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("file", path).Msg("Store exported")
	return nil
}

func (a *app) runWorker(ctx context.Context) error {
	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", addr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info().
		Int("concurrency", a.cfg.Queue.Concurrency).
		Int("max_retry", a.cfg.Queue.MaxRetry).
		Str("redis", a.cfg.Queue.RedisAddr).
		Msg("Starting queue worker")
	return queue.NewWorker(a.cfg.Queue, a.pipeline).Run()
}

// dryRun converts and chunks a file without any remote calls.
func dryRun(ctx context.Context, cfg *config.Config, filePath string) error {
	if filePath == "" {
		return errors.New("-dry-run needs a -file")
	}
	svc := pipeline.NewService(parser.NewConverter(), newChunker(cfg), nil, nil)
	chunks, split, err := svc.Preview(ctx, filePath)
	if err != nil {
		return fmt.Errorf("error parsing document: %w", err)
	}
	log.Info().Int("chunks", len(chunks)).Str("strategy", split.Strategy).Bool("fallback", split.Fallback).Msg("Parsed content")
	helper.PrettyPrint(chunks)
	return nil
}
