package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/cost"
	"github.com/sells-group/enrich-cli/internal/events"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
	"github.com/sells-group/enrich-cli/pkg/jina"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
)

// Deps bundles the collaborators a Pipeline needs.
type Deps struct {
	Config     *config.Config
	Store      store.Store
	Anthropic  anthropic.Client
	Firecrawl  firecrawl.Client
	Jina       jina.Client
	Perplexity perplexity.Client
	Costs      *cost.Calculator
	Bus        *events.Bus
}

// Pipeline executes the enrichment state machine for one product at a time.
// Stages run sequentially; any stage error short-circuits the remainder and
// the run terminates failed with the error recorded verbatim.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	anthropic  anthropic.Client
	firecrawl  firecrawl.Client
	jina       jina.Client
	perplexity perplexity.Client
	costs      *cost.Calculator
	bus        *events.Bus
	images     *ImageFilter
	log        *zap.Logger
}

// New creates a Pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	return &Pipeline{
		cfg:        deps.Config,
		store:      deps.Store,
		anthropic:  deps.Anthropic,
		firecrawl:  deps.Firecrawl,
		jina:       deps.Jina,
		perplexity: deps.Perplexity,
		costs:      deps.Costs,
		bus:        deps.Bus,
		images:     NewImageFilter(deps.Config.Images),
		log:        zap.L().Named("pipeline"),
	}
}

// stage is one state-machine step: the status it runs under and the work.
type stage struct {
	status model.Status
	run    func(ctx context.Context, p *model.Product) error
}

// Run executes a full enrichment for the product. Each stage's status is
// persisted before the stage runs, so an observer always sees where the run
// is. The terminal status is done or needs_review from the validation
// verdict, or failed when a stage errors.
func (pl *Pipeline) Run(ctx context.Context, productID string) (*model.Product, error) {
	product, err := pl.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load product")
	}

	log := pl.log.With(zap.String("product_id", product.ID), zap.String("ean", product.EAN))
	log.Info("enrichment run starting", zap.String("name", product.Name))

	stages := []stage{
		{model.StatusClassifying, pl.runTriage},
		{model.StatusBrandLookup, pl.runBrandLookup},
		{model.StatusSearching, pl.runSearch},
		{model.StatusExtracting, pl.runExtract},
		{model.StatusGapFilling, pl.runGapFill},
		{model.StatusValidating, pl.runValidate},
	}

	for _, st := range stages {
		// Brand lookup only runs when the brand is still unknown: the
		// catalog row carried none and triage could not name one
		// confidently.
		if st.status == model.StatusBrandLookup &&
			(product.Brand != "" ||
				product.Classification.BrandConfident(pl.cfg.Triage.BrandConfidenceThreshold)) {
			product.AppendLog("brand_lookup", "", "skipped", "brand already identified", 0)
			continue
		}

		if err := pl.setStatus(ctx, product, st.status); err != nil {
			return product, err
		}
		if err := st.run(ctx, product); err != nil {
			return pl.fail(ctx, product, st.status, err)
		}
		if err := pl.store.SaveProduct(ctx, product); err != nil {
			return product, eris.Wrapf(err, "pipeline: persist after %s", st.status)
		}
	}

	final := model.StatusDone
	if product.Validation.NeedsReview() {
		final = model.StatusNeedsReview
	}
	if err := pl.setStatus(ctx, product, final); err != nil {
		return product, err
	}
	if err := pl.store.SaveProduct(ctx, product); err != nil {
		return product, eris.Wrap(err, "pipeline: persist final")
	}

	log.Info("enrichment run finished", zap.String("status", string(final)))
	return product, nil
}

// setStatus persists a status transition and publishes it to subscribers.
func (pl *Pipeline) setStatus(ctx context.Context, product *model.Product, status model.Status) error {
	product.Status = status
	if err := pl.store.UpdateStatus(ctx, product.ID, status); err != nil {
		return eris.Wrapf(err, "pipeline: set status %s", status)
	}
	pl.publish(product, "status", map[string]any{"status": string(status)})
	return nil
}

// fail records a stage error as the run's terminal state. The error text is
// persisted verbatim and the remaining stages never run.
func (pl *Pipeline) fail(ctx context.Context, product *model.Product, failed model.Status, cause error) (*model.Product, error) {
	pl.log.Warn("stage failed",
		zap.String("product_id", product.ID),
		zap.String("stage", string(failed)),
		zap.Error(cause))

	product.Status = model.StatusFailed
	product.Error = cause.Error()
	product.AppendLog(string(failed), "", "failed", cause.Error(), 0)
	if err := pl.store.SaveProduct(ctx, product); err != nil {
		return product, eris.Wrap(err, "pipeline: persist failure")
	}
	pl.publish(product, "status", map[string]any{
		"status": string(model.StatusFailed),
		"error":  cause.Error(),
	})
	return product, cause
}

func (pl *Pipeline) publish(product *model.Product, eventType string, data map[string]any) {
	if pl.bus == nil {
		return
	}
	pl.bus.PublishProduct(product.ID, events.Event{Type: eventType, Data: data})
}

// claudeCost converts token usage to USD through the calculator, for the
// per-step credit entries in the product log.
func (pl *Pipeline) claudeCost(modelName string, u anthropic.TokenUsage) float64 {
	if pl.costs == nil {
		return 0
	}
	return pl.costs.Claude(modelName, false,
		int(u.InputTokens), int(u.OutputTokens),
		int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens))
}
