package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

const (
	// maxQueries bounds how many query variants one search stage issues.
	maxQueries = 3
	// perQueryResults caps the hits taken from a single query.
	perQueryResults = 7
	// earlyExitHits stops issuing further queries once one query alone
	// produced this many hits.
	earlyExitHits = 3
	// classifyTop is how many deduplicated hits the tagging call sees.
	classifyTop = 10
	// keepTop caps the tagged results carried into extraction.
	keepTop = 5
)

// sourceTag is one entry of the tagging call's answer.
type sourceTag struct {
	URL        string `json:"url"`
	SourceType string `json:"source_type"`
}

// buildQueries assembles the query ladder from whatever identity the record
// has: brand+model when triage found a model number, brand+name when only
// the brand is known, name+ean otherwise, always with a bare-EAN fallback.
func buildQueries(product *model.Product) []string {
	brand := strings.TrimSpace(product.Brand)
	modelNo := ""
	if product.Classification != nil {
		modelNo = strings.TrimSpace(product.Classification.ModelNumber)
	}

	var queries []string
	switch {
	case brand != "" && modelNo != "":
		queries = append(queries,
			fmt.Sprintf("%s %s specifications", brand, modelNo),
			fmt.Sprintf("%s %s %s", brand, modelNo, product.EAN))
	case brand != "":
		queries = append(queries, fmt.Sprintf("%s %s specifications", brand, product.Name))
	default:
		queries = append(queries, fmt.Sprintf("%s %s", product.Name, product.EAN))
	}
	queries = append(queries, product.EAN)

	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries
}

// runSearch issues the query ladder, deduplicates hits by URL, and tags
// each candidate's source type in one LLM call. Irrelevant hits are
// dropped; the rest are kept in tier order, capped.
func (pl *Pipeline) runSearch(ctx context.Context, product *model.Product) error {
	queries := buildQueries(product)

	var collected []model.SearchResult
	seen := make(map[string]bool)
	for _, query := range queries {
		resp, err := pl.jina.Search(ctx, query)
		if err != nil {
			pl.log.Warn("search query failed",
				zap.String("product_id", product.ID),
				zap.String("query", query),
				zap.Error(err))
			continue
		}

		hits := resp.Data
		if len(hits) > perQueryResults {
			hits = hits[:perQueryResults]
		}
		added := 0
		for _, hit := range hits {
			if hit.URL == "" || seen[hit.URL] {
				continue
			}
			seen[hit.URL] = true
			collected = append(collected, model.SearchResult{
				URL:         hit.URL,
				Title:       hit.Title,
				Description: hit.Description,
			})
			added++
		}
		if len(collected) >= pl.cfg.Triage.MaxSearchResults {
			break
		}
		if added >= earlyExitHits {
			break
		}
	}

	if len(collected) == 0 {
		product.SearchResults = nil
		product.AppendLog("searching", "search", "ok", "no results", 0)
		return nil
	}

	tagged, cost := pl.tagSources(ctx, product, collected)
	product.SearchResults = tagged
	product.AppendLog("searching", "search", "ok",
		fmt.Sprintf("%d results, %d usable", len(collected), len(tagged)), cost)
	return nil
}

// tagSources classifies each search hit's origin in one LLM call and keeps
// the usable hits in tier order. When tagging fails the untagged hits are
// kept as third-party rather than discarding the search work.
func (pl *Pipeline) tagSources(ctx context.Context, product *model.Product, hits []model.SearchResult) ([]model.SearchResult, float64) {
	candidates := hits
	if len(candidates) > classifyTop {
		candidates = candidates[:classifyTop]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Classify each search result for the product %q (brand: %s, EAN: %s) by its source:\n",
		product.Name, product.Brand, product.EAN)
	sb.WriteString(`- "manufacturer": the brand's own website
- "authorized_distributor": an official distributor or dealer of the brand
- "third_party": a retailer, marketplace, or review site carrying the product
- "irrelevant": a different product, or no product content at all

Respond with a JSON array of {"url", "source_type"}.

Results:
`)
	for i, hit := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, hit.URL, hit.Title, hit.Description)
	}

	tags, usage, err := anthropic.ExtractTyped[[]sourceTag](ctx, pl.anthropic, anthropic.ExtractRequest{
		Model:        pl.cfg.Anthropic.HaikuModel,
		MaxTokens:    pl.cfg.Anthropic.MaxTokens,
		Instructions: sb.String(),
	})
	if err != nil {
		pl.log.Warn("source tagging failed, keeping hits as third_party",
			zap.String("product_id", product.ID), zap.Error(err))
		fallback := candidates
		if len(fallback) > keepTop {
			fallback = fallback[:keepTop]
		}
		out := make([]model.SearchResult, len(fallback))
		for i, hit := range fallback {
			hit.SourceType = model.SourceThirdParty
			out[i] = hit
		}
		return out, 0
	}
	usage.LogCost(pl.cfg.Anthropic.HaikuModel, "search")

	byURL := make(map[string]model.SourceTier, len(tags))
	for _, tag := range tags {
		byURL[tag.URL] = parseSourceTier(tag.SourceType)
	}

	var out []model.SearchResult
	for _, hit := range candidates {
		tier, ok := byURL[hit.URL]
		if !ok {
			tier = model.SourceThirdParty
		}
		if tier == model.SourceIrrelevant {
			continue
		}
		hit.SourceType = tier
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SourceType.Rank() > out[j].SourceType.Rank()
	})
	if len(out) > keepTop {
		out = out[:keepTop]
	}
	return out, pl.claudeCost(pl.cfg.Anthropic.HaikuModel, usage)
}

func parseSourceTier(s string) model.SourceTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manufacturer":
		return model.SourceManufacturer
	case "authorized_distributor", "authorized distributor", "authorized":
		return model.SourceAuthorized
	case "third_party", "third party", "retailer", "marketplace":
		return model.SourceThirdParty
	default:
		return model.SourceIrrelevant
	}
}
