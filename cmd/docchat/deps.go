package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/docchat/config"
	"github.com/mohammad-safakhou/docchat/internal/answer"
	"github.com/mohammad-safakhou/docchat/internal/chunker"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/embedding"
	"github.com/mohammad-safakhou/docchat/internal/llm"
	"github.com/mohammad-safakhou/docchat/internal/pipeline"
	"github.com/mohammad-safakhou/docchat/internal/queue/streams"
	"github.com/mohammad-safakhou/docchat/internal/store"
	"github.com/mohammad-safakhou/docchat/internal/store/litestore"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
	"github.com/mohammad-safakhou/docchat/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// app holds the process-wide components, built once at startup.
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	pipeline *pipeline.Pipeline
	metrics  *telemetry.Metrics
	rdb      *redis.Client
	closers  []func() error
}

// buildApp wires the pipeline. Without answering, no LLM candidate is built,
// so ingest-only commands start without model credentials.
func buildApp(ctx context.Context, cfg *config.Config, answering bool) (_ *app, err error) {
	a := &app{cfg: cfg, registry: telemetry.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	metrics := telemetry.NewMetrics(a.registry)
	a.metrics = metrics

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	emb, err := a.buildEmbedder(ctx, cfg, metrics)
	if err != nil {
		return nil, err
	}

	var engine *answer.Engine
	if answering {
		if engine, err = buildEngine(cfg, metrics); err != nil {
			return nil, err
		}
	}

	a.pipeline, err = pipeline.New(pipeline.Options{
		Chunker:          chunker.Options{Size: cfg.Chunker.Size, Overlap: cfg.Chunker.Overlap},
		TopK:             cfg.Retrieval.TopK,
		NoContextMessage: cfg.Retrieval.NoContextMessage,
		Levels: pipeline.Levels{
			Beginner:     cfg.Levels.Beginner,
			Intermediate: cfg.Levels.Intermediate,
			Expert:       cfg.Levels.Expert,
		},
		BatchSize:   cfg.Embedder.BatchSize,
		Parallelism: cfg.Embedder.Parallelism,
		Debug:       cfg.General.Debug,
	}, emb, st, engine, metrics)
	if err != nil {
		return nil, err
	}

	if cfg.Ingest.Async {
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		a.pipeline.UseQueue(worker.NewQueue(streams.NewPublisher(rdb), cfg.Ingest.Stream, cfg.Ingest.MaxLen, metrics))
	}
	return a, nil
}

// redis connects once and shares the client between the embedding cache and the ingest queue.
func (a *app) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rc := a.cfg.Storage.Redis
	client, err := embedding.Conn(ctx, rc.Host, rc.Port, rc.Password, rc.DB, rc.Timeout)
	if err != nil {
		return nil, err
	}
	a.rdb = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("warn: close: %v", err)
		}
	}
	a.closers = nil
}

func openStore(ctx context.Context, cfg *config.Config) (domain.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		return litestore.Open(ctx, cfg.Storage.SQLite.Path, cfg.Embedder.Dimensions)
	case config.DriverPostgres:
		st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		st.Dimensions = cfg.Embedder.Dimensions
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

func (a *app) buildEmbedder(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (domain.Embedder, error) {
	ec := cfg.Embedder
	var emb domain.Embedder
	switch ec.Type {
	case config.EmbedderHashing:
		emb = embedding.NewHashing(ec.Dimensions)
	case config.EmbedderOllama, config.EmbedderOpenAI:
		remote, err := embedding.NewRemote(embedding.RemoteOptions{
			Provider:          ec.Type,
			BaseURL:           ec.BaseURL,
			Model:             ec.Model,
			APIKey:            ec.APIKey,
			Dimensions:        ec.Dimensions,
			BatchSize:         ec.BatchSize,
			Timeout:           ec.Timeout,
			MaxRetries:        ec.MaxRetries,
			RequestsPerSecond: ec.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		emb = remote
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", ec.Type)
	}

	rc := cfg.Storage.Redis
	if !rc.Enabled() {
		return emb, nil
	}
	client, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	return embedding.NewCached(emb, &embedding.RedisCache{Client: client}, rc.CacheTTL, metrics), nil
}

func buildEngine(cfg *config.Config, metrics *telemetry.Metrics) (*answer.Engine, error) {
	lc := cfg.LLM
	candidates := make([]llm.Generator, 0, len(lc.Candidates))
	var errs []error
	for _, c := range lc.Candidates {
		gen, err := llm.New(llm.Options{
			Name:        c.Name,
			Provider:    c.Provider,
			Model:       c.Model,
			BaseURL:     c.BaseURL,
			APIKey:      c.APIKey,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		candidates = append(candidates, gen)
	}
	// a missing credential is a startup fault, never a degraded answer
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return answer.NewEngine(answer.Config{
		MaxContextChars: lc.MaxContextChars,
		Timeout:         lc.Timeout,
		Template:        lc.PromptTemplate,
		GeneralTemplate: lc.GeneralTemplate,
		TimeoutMessage:  lc.TimeoutMessage,
		FailureMessage:  lc.FailureMessage,
		StopMarkers:     lc.StopMarkers,
	}, candidates, metrics)
}
