package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
)

// barcodeLookupURL is the public barcode database consulted when the
// product name alone does not identify the brand.
const barcodeLookupURL = "https://www.barcodelookup.com/%s"

// barcodeLookupTruncate bounds how much of the lookup page is sent to the
// parsing call.
const barcodeLookupTruncate = 15000

// barcodeResult is the parsed barcode database entry.
type barcodeResult struct {
	Brand       string `json:"brand"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
}

// runBrandLookup resolves the brand from a barcode database page. Entered
// only when triage could not name the brand confidently. A lookup that
// finds nothing is not an error; the run continues brandless.
func (pl *Pipeline) runBrandLookup(ctx context.Context, product *model.Product) error {
	resp, err := pl.firecrawl.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     fmt.Sprintf(barcodeLookupURL, product.EAN),
		Formats: []string{"markdown"},
	})
	if err != nil {
		return eris.Wrap(err, "brand_lookup: scrape barcode page")
	}
	markdown := resp.Data.Markdown
	if len(markdown) > barcodeLookupTruncate {
		markdown = markdown[:barcodeLookupTruncate]
	}

	result, usage, err := anthropic.ExtractTyped[barcodeResult](ctx, pl.anthropic, anthropic.ExtractRequest{
		Model:     pl.cfg.Anthropic.HaikuModel,
		MaxTokens: pl.cfg.Anthropic.MaxTokens,
		Instructions: fmt.Sprintf(
			"This is a barcode database page for EAN %s. Extract the product's brand, full product name, and category. The page may list no match for the barcode.",
			product.EAN),
		Content: markdown,
	})
	if err != nil {
		return eris.Wrap(err, "brand_lookup: parse barcode page")
	}
	usage.LogCost(pl.cfg.Anthropic.HaikuModel, "brand_lookup")

	result.Brand = strings.TrimSpace(result.Brand)
	if result.Brand != "" {
		product.Brand = result.Brand
		if product.Classification != nil && product.Classification.Brand == "" {
			product.Classification.Brand = result.Brand
		}
	}

	pl.log.Info("brand lookup",
		zap.String("product_id", product.ID),
		zap.String("brand", result.Brand),
		zap.String("category", result.Category))

	product.AppendLog("brand_lookup", "barcode", "ok",
		fmt.Sprintf("brand=%s category=%s", result.Brand, result.Category),
		pl.claudeCost(pl.cfg.Anthropic.HaikuModel, usage))
	return nil
}

// lookupBrandOrigin returns the country of origin for a brand, consulting
// the long-lived cache first and falling back to a web search synthesis.
// The cache is keyed by lowercased brand, last-writer-wins; a racing lookup
// costs one redundant search, never corruption.
func (pl *Pipeline) lookupBrandOrigin(ctx context.Context, brand string) (*model.BrandOrigin, error) {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return nil, nil
	}

	cached, err := pl.store.GetBrandOrigin(ctx, brand)
	if err != nil {
		return nil, eris.Wrap(err, "brand_lookup: origin cache read")
	}
	if cached != nil {
		return cached, nil
	}

	resp, err := pl.perplexity.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "user", Content: fmt.Sprintf(
				"%s country of origin manufacturing. Answer with just the country name where this brand's products are primarily manufactured, or the brand's home country if manufacturing is spread out.", brand)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "brand_lookup: origin search")
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	country := firstLine(resp.Choices[0].Message.Content)
	if country == "" || len(country) > 60 {
		return nil, nil
	}

	origin := model.BrandOrigin{
		Brand:     brand,
		Country:   country,
		Tier:      model.TierInferred,
		UpdatedAt: time.Now().UTC(),
	}
	if err := pl.store.UpsertBrandOrigin(ctx, origin); err != nil {
		return nil, eris.Wrap(err, "brand_lookup: origin cache write")
	}
	return &origin, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.Trim(s, ".*"))
}
