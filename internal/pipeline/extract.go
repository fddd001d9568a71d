package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
)

// structuredInstructions asks the first pass for physical data. Markers in
// the second pass keep description text out of the expensive output tokens.
const structuredInstructions = `Extract the product's physical data from this page.

Report two groups of measurements, each with fields height, length, width, depth, weight, diameter, volume as {"value": number, "unit": string}:
- "net": the product itself
- "packaged": the product in its shipping packaging

Also report:
- "color": the product's color as stated on the page
- "country_of_origin": where the product is made, if stated
- "primary_image_url": the URL of the main product photo, if identifiable
- "image_urls": URLs of product photos on the page

Report only values the page states for this exact product.`

const contentInstructions = `Extract the product's descriptive content from this page.

Report:
- "short_description": the page's concise product summary, as {"start_marker": first ~50 characters verbatim, "end_marker": last ~50 characters verbatim}. Do not return the full text.
- "marketing_text": the longer marketing description, same marker format
- "features": bullet-point feature strings
- "technical_specs": rows of {"name", "value", "unit"}
- "warranty": {"duration_months": number, "type": string, "conditions": string}

Markers must be copied verbatim from the page text so the passage can be located again.`

// runExtract scrapes the tagged search results and runs the two extraction
// passes over manufacturer and authorized pages. Third-party pages are
// scraped and cached for gap-fill but not extracted here. Image and
// document candidates are harvested from every cached page's raw content
// regardless of extraction success, then filtered deterministically.
func (pl *Pipeline) runExtract(ctx context.Context, product *model.Product) error {
	enriched := model.NewEnrichedProduct()
	product.Enriched = enriched

	if len(product.SearchResults) == 0 {
		// Tried and found nothing is a completed run, not a failure.
		product.AppendLog("extracting", "", "ok", "no usable sources", 0)
		return nil
	}

	system := anthropic.BuildCachedSystemBlocks(fmt.Sprintf(
		"You are a product data extraction assistant. Product: %s %s (EAN: %s). Extract only data about this exact product. Never invent values; use null for anything the page does not state.",
		product.Brand, product.Name, product.EAN))

	var (
		pages      []extractedPage
		cached     = make(map[string]string)
		cachedRows []model.ScrapedPage
		extracted  int
		thirdParty int
	)

	for _, result := range product.SearchResults {
		isThirdParty := result.SourceType == model.SourceThirdParty
		if isThirdParty && thirdParty >= pl.cfg.Extract.MaxThirdPartyCache {
			continue
		}
		if !isThirdParty && extracted >= pl.cfg.Extract.MaxPages {
			continue
		}

		markdown, err := pl.scrapePage(ctx, result.URL)
		page := model.ScrapedPage{
			ProductID:  product.ID,
			URL:        result.URL,
			SourceTier: result.SourceType,
			Markdown:   markdown,
			Success:    err == nil,
			ScrapedAt:  time.Now().UTC(),
		}
		if err != nil {
			pl.log.Warn("page scrape failed, skipping",
				zap.String("product_id", product.ID),
				zap.String("url", result.URL),
				zap.Error(err))
			product.AppendLog("extracting", "scrape", "skipped", result.URL+": "+err.Error(), 0)
			pl.cachePage(ctx, product, &page)
			continue
		}

		if isThirdParty {
			thirdParty++
			pl.cachePage(ctx, product, &page)
			cached[result.URL] = markdown
			cachedRows = append(cachedRows, page)
			continue
		}

		extraction, cost := pl.extractPage(ctx, product, system, result, markdown)
		page.Extracted = extraction.Structured != nil || extraction.Content != nil
		pl.cachePage(ctx, product, &page)
		cached[result.URL] = markdown
		cachedRows = append(cachedRows, page)

		if page.Extracted {
			extracted++
			pages = append(pages, extraction)
			product.AppendLog("extracting", "extract", "ok", result.URL, cost)
		}
	}

	nominee := mergeExtractions(enriched, pages)
	mergeDescriptions(enriched, pages, cached)
	enriched.Documents = DiscoverDocuments(cachedRows, pl.cfg.Documents.MaxDocuments)

	candidates := pl.collectImageCandidates(pages, cachedRows)
	primary, kept := pl.images.Filter(ctx, candidates, nominee)
	enriched.PrimaryImageURL = primary
	enriched.ImageURLs = kept

	product.AppendLog("extracting", "", "ok",
		fmt.Sprintf("%d pages extracted, %d third-party cached, %d images, %d documents",
			extracted, thirdParty, len(kept), len(enriched.Documents)), 0)
	return nil
}

// scrapePage fetches one URL with a single fixed-delay retry, falling back
// to the reader API when the scraper cannot deliver the page. The markdown
// is truncated to the configured length.
func (pl *Pipeline) scrapePage(ctx context.Context, url string) (string, error) {
	retry := resilience.SingleRetry(time.Duration(pl.cfg.Extract.RetryDelaySecs) * time.Second)
	retry.OnRetry = resilience.RetryLogger("firecrawl", "scrape")

	markdown, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		resp, err := pl.firecrawl.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:     url,
			Formats: []string{"markdown"},
		})
		if err != nil {
			return "", err
		}
		if !resp.Success || resp.Data.Markdown == "" {
			return "", eris.Errorf("extract: empty scrape for %s", url)
		}
		return resp.Data.Markdown, nil
	})
	if err != nil {
		markdown, err = pl.readerFallback(ctx, url, err)
	}
	if err != nil {
		return "", err
	}
	if len(markdown) > pl.cfg.Extract.TruncateChars {
		markdown = markdown[:pl.cfg.Extract.TruncateChars]
	}
	return markdown, nil
}

// readerFallback renders a page through the reader API after the scraper
// gave up on it. The scrape error stays the cause when the fallback cannot
// deliver either.
func (pl *Pipeline) readerFallback(ctx context.Context, url string, scrapeErr error) (string, error) {
	resp, err := pl.jina.Read(ctx, url)
	if err != nil {
		return "", eris.Wrapf(scrapeErr, "extract: reader fallback failed: %v", err)
	}
	if resp.Data.Content == "" {
		return "", eris.Wrap(scrapeErr, "extract: reader fallback returned no content")
	}
	pl.log.Info("reader fallback rescued page", zap.String("url", url))
	return resp.Data.Content, nil
}

// extractPage runs both passes over one page. The passes share the system
// preamble and the identical content block so a caching-aware collaborator
// reuses the prefix; each pass retries once and a repeated failure leaves
// that pass's contribution absent rather than failing the run.
func (pl *Pipeline) extractPage(ctx context.Context, product *model.Product, system []anthropic.SystemBlock, result model.SearchResult, markdown string) (extractedPage, float64) {
	page := extractedPage{URL: result.URL, SourceTier: result.SourceType}
	retry := resilience.SingleRetry(time.Duration(pl.cfg.Extract.RetryDelaySecs) * time.Second)
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	var cost float64

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		structured, usage, err := anthropic.ExtractTyped[structuredExtraction](ctx, pl.anthropic, anthropic.ExtractRequest{
			Model:        pl.cfg.Anthropic.SonnetModel,
			MaxTokens:    pl.cfg.Anthropic.MaxTokens,
			System:       system,
			Instructions: structuredInstructions,
			Content:      markdown,
		})
		if err != nil {
			return err
		}
		usage.LogCost(pl.cfg.Anthropic.SonnetModel, "extract_structured")
		cost += pl.claudeCost(pl.cfg.Anthropic.SonnetModel, usage)
		page.Structured = &structured
		return nil
	})
	if err != nil {
		pl.log.Warn("structured pass failed",
			zap.String("url", result.URL), zap.Error(err))
	}

	err = resilience.Do(ctx, retry, func(ctx context.Context) error {
		content, usage, err := anthropic.ExtractTyped[contentExtraction](ctx, pl.anthropic, anthropic.ExtractRequest{
			Model:        pl.cfg.Anthropic.SonnetModel,
			MaxTokens:    pl.cfg.Anthropic.MaxTokens,
			System:       system,
			Instructions: contentInstructions,
			Content:      markdown,
		})
		if err != nil {
			return err
		}
		usage.LogCost(pl.cfg.Anthropic.SonnetModel, "extract_content")
		cost += pl.claudeCost(pl.cfg.Anthropic.SonnetModel, usage)
		page.Content = &content
		return nil
	})
	if err != nil {
		pl.log.Warn("content pass failed",
			zap.String("url", result.URL), zap.Error(err))
	}

	return page, cost
}

// cachePage upserts a scraped-page row. Cache write failures are logged and
// swallowed: losing a cache row degrades gap-fill, not the run.
func (pl *Pipeline) cachePage(ctx context.Context, product *model.Product, page *model.ScrapedPage) {
	if err := pl.store.UpsertScrapedPage(ctx, page); err != nil {
		pl.log.Warn("page cache write failed",
			zap.String("product_id", product.ID),
			zap.String("url", page.URL),
			zap.Error(err))
	}
}

// collectImageCandidates gathers image URLs from structured extraction
// output and from every cached page's raw content, first-seen order, capped
// at the discovery ceiling.
func (pl *Pipeline) collectImageCandidates(pages []extractedPage, cachedRows []model.ScrapedPage) []string {
	limit := pl.cfg.Images.DiscoverCap
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" || seen[u] || len(out) >= limit {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, page := range pages {
		if page.Structured == nil {
			continue
		}
		if page.Structured.PrimaryImageURL != nil {
			add(*page.Structured.PrimaryImageURL)
		}
		for _, u := range page.Structured.ImageURLs {
			add(u)
		}
	}
	for _, row := range cachedRows {
		for _, u := range harvestImageURLs(row.Markdown, limit) {
			add(u)
		}
	}
	return out
}
