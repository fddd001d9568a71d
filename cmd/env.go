package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/cost"
	"github.com/sells-group/enrich-cli/internal/events"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/store"
	anthropicpkg "github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
	"github.com/sells-group/enrich-cli/pkg/jina"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
)

// pipelineEnv holds the initialized store, event bus, and pipeline shared by
// the run/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Bus      *events.Bus
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "enrich.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store and all API clients and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model))

	bus := events.NewBus()
	p := pipeline.New(pipeline.Deps{
		Config:     cfg,
		Store:      st,
		Anthropic:  anthropicClient,
		Firecrawl:  firecrawlClient,
		Jina:       jinaClient,
		Perplexity: perplexityClient,
		Costs:      cost.NewCalculator(ratesFromConfig(cfg.Pricing)),
		Bus:        bus,
	})

	return &pipelineEnv{Store: st, Bus: bus, Pipeline: p}, nil
}

// ratesFromConfig maps configured pricing onto calculator rates, falling
// back to the shipped defaults for anything unset.
func ratesFromConfig(pc config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	if len(pc.Anthropic) > 0 {
		rates.Anthropic = make(map[string]cost.ModelRate, len(pc.Anthropic))
		for model, mp := range pc.Anthropic {
			rates.Anthropic[model] = cost.ModelRate{
				Input:         mp.Input,
				Output:        mp.Output,
				BatchDiscount: mp.BatchDiscount,
				CacheWriteMul: mp.CacheWriteMul,
				CacheReadMul:  mp.CacheReadMul,
			}
		}
	}
	if pc.Jina.PerMTok > 0 {
		rates.Jina.PerMTok = pc.Jina.PerMTok
	}
	if pc.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerQuery = pc.Perplexity.PerQuery
	}
	if pc.Firecrawl.PlanMonthly > 0 {
		rates.Firecrawl.PlanMonthly = pc.Firecrawl.PlanMonthly
		rates.Firecrawl.CreditsIncluded = pc.Firecrawl.CreditsIncluded
	}
	return rates
}
