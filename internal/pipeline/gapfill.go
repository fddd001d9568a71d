package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/norm"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

// gapFillTruncate bounds page content for gap-fill calls; cached pages can
// be longer than the main-pass truncation since gap-fill requests far less
// output.
const gapFillTruncate = 30000

// minGapFillContent skips cached pages too short to carry product data.
const minGapFillContent = 100

const gapFillNote = "Gap-filled from third-party page"

// criticalGaps are the fields worth a second extraction pass. Each gap
// carries its own prompt section so a page is only asked about what is
// actually missing. Keyword lists cover the catalog's source languages.
var criticalGaps = []struct {
	name    string
	missing func(e *model.EnrichedProduct) bool
	prompt  string
}{
	{
		name:    "net_weight",
		missing: func(e *model.EnrichedProduct) bool { return !e.Dimensions.Net.Weight.IsSet() },
		prompt:  `- "net_weight": the product's own weight as {"value", "unit"}. Look for: weight, net weight, teža, masa, Gewicht, Nettogewicht.`,
	},
	{
		name:    "packaged_weight",
		missing: func(e *model.EnrichedProduct) bool { return !e.Dimensions.Packaged.Weight.IsSet() },
		prompt:  `- "packaged_weight": the shipping weight with packaging as {"value", "unit"}. Look for: gross weight, shipping weight, teža s pakiranjem, bruto teža, Bruttogewicht, Versandgewicht.`,
	},
	{
		name: "packaged_dims",
		missing: func(e *model.EnrichedProduct) bool {
			p := &e.Dimensions.Packaged
			return !p.Height.IsSet() && !p.Length.IsSet() && !p.Width.IsSet()
		},
		prompt: `- "packaged_height", "packaged_length", "packaged_width": package dimensions, each {"value", "unit"}. Look for: package dimensions, dimenzije pakiranja, Verpackungsmaße.`,
	},
	{
		name: "warranty",
		missing: func(e *model.EnrichedProduct) bool {
			return e.Warranty == nil || !e.Warranty.Duration.IsSet()
		},
		prompt: `- "warranty_duration_months": the warranty length in months. Look for: warranty, garancija, garancijska doba, Garantie, Gewährleistung.`,
	},
	{
		name:    "short_description",
		missing: func(e *model.EnrichedProduct) bool { return !e.Descriptions.Short.IsSet() },
		prompt:  `- "short_description": a concise product summary, 1-3 sentences verbatim from the page.`,
	},
}

// gapFillExtraction is the targeted second-pass answer shape.
type gapFillExtraction struct {
	NetWeight              *valueUnit `json:"net_weight"`
	PackagedWeight         *valueUnit `json:"packaged_weight"`
	PackagedHeight         *valueUnit `json:"packaged_height"`
	PackagedLength         *valueUnit `json:"packaged_length"`
	PackagedWidth          *valueUnit `json:"packaged_width"`
	WarrantyDurationMonths *float64   `json:"warranty_duration_months"`
	ShortDescription       *string    `json:"short_description"`
}

// openGaps returns the names of critical gaps still unfilled.
func openGaps(e *model.EnrichedProduct) []string {
	var out []string
	for _, gap := range criticalGaps {
		if gap.missing(e) {
			out = append(out, gap.name)
		}
	}
	return out
}

// runGapFill fills critical gaps from cached third-party pages the main
// pass never extracted. Pages are processed in cache order, each result
// merged immediately without overwriting, and the stage exits early only
// once every requested gap is filled. With no gaps or no reserve pages the
// stage is a no-op.
func (pl *Pipeline) runGapFill(ctx context.Context, product *model.Product) error {
	if product.Enriched == nil {
		product.AppendLog("gap_filling", "", "skipped", "nothing extracted", 0)
		return nil
	}
	gaps := openGaps(product.Enriched)
	if len(gaps) == 0 {
		product.AppendLog("gap_filling", "", "skipped", "no critical gaps", 0)
		return nil
	}

	cached, err := pl.store.ListScrapedPages(ctx, product.ID)
	if err != nil {
		return eris.Wrap(err, "gap_fill: list cached pages")
	}
	var reserve []model.ScrapedPage
	for _, page := range cached {
		if page.Success && !page.Extracted && !page.GapFilled &&
			page.SourceTier == model.SourceThirdParty &&
			len(page.Markdown) >= minGapFillContent {
			reserve = append(reserve, page)
		}
	}
	if len(reserve) == 0 {
		product.AppendLog("gap_filling", "", "skipped",
			fmt.Sprintf("gaps remain (%s) but no reserve pages", strings.Join(gaps, ", ")), 0)
		return nil
	}

	pl.log.Info("gap-fill starting",
		zap.String("product_id", product.ID),
		zap.Strings("gaps", gaps),
		zap.Int("reserve_pages", len(reserve)))

	// One static preamble shared across every page so the prompt cache
	// amortizes it.
	system := anthropic.BuildCachedSystemBlocks(fmt.Sprintf(
		"You are a product data extraction assistant. Product: %s %s (EAN: %s). You will receive retailer pages that may mention this product. Extract only the requested fields, only for this exact product. Never invent values.",
		product.Brand, product.Name, product.EAN))

	var totalCost float64
	filled := 0
	for _, page := range reserve {
		// Re-derive the gap set each round: an earlier page may have
		// filled some of them.
		gaps = openGaps(product.Enriched)
		if len(gaps) == 0 {
			break
		}

		result, cost, err := pl.gapFillPage(ctx, system, page, gaps)
		totalCost += cost
		page.GapFilled = true
		pl.cachePage(ctx, product, &page)
		if err != nil {
			pl.log.Warn("gap-fill page failed",
				zap.String("url", page.URL), zap.Error(err))
			continue
		}
		filled += applyGapFill(product.Enriched, result, page.URL)
	}

	norm.NormalizeDimensionSet(&product.Enriched.Dimensions.Net)
	norm.NormalizeDimensionSet(&product.Enriched.Dimensions.Packaged)

	product.AppendLog("gap_filling", "", "ok",
		fmt.Sprintf("%d fields filled, %d gaps remain", filled, len(openGaps(product.Enriched))),
		totalCost)
	return nil
}

// gapFillPage runs one targeted extraction over one reserve page, asking
// only about the gaps still open.
func (pl *Pipeline) gapFillPage(ctx context.Context, system []anthropic.SystemBlock, page model.ScrapedPage, gaps []string) (gapFillExtraction, float64, error) {
	var sb strings.Builder
	sb.WriteString("Find the following fields on this page:\n")
	want := make(map[string]bool, len(gaps))
	for _, g := range gaps {
		want[g] = true
	}
	for _, gap := range criticalGaps {
		if want[gap.name] {
			sb.WriteString(gap.prompt)
			sb.WriteByte('\n')
		}
	}

	content := page.Markdown
	if len(content) > gapFillTruncate {
		content = content[:gapFillTruncate]
	}

	result, usage, err := anthropic.ExtractTyped[gapFillExtraction](ctx, pl.anthropic, anthropic.ExtractRequest{
		Model:        pl.cfg.Anthropic.HaikuModel,
		MaxTokens:    pl.cfg.Anthropic.MaxTokens,
		System:       system,
		Instructions: sb.String(),
		Content:      content,
	})
	if err != nil {
		return gapFillExtraction{}, 0, eris.Wrap(err, "gap_fill: extract")
	}
	usage.LogCost(pl.cfg.Anthropic.HaikuModel, "gap_fill")
	return result, pl.claudeCost(pl.cfg.Anthropic.HaikuModel, usage), nil
}

// applyGapFill merges one page's gap-fill result into the aggregate. Only
// true gaps are written; an already-present value is never overwritten.
// Returns the number of fields filled.
func applyGapFill(e *model.EnrichedProduct, result gapFillExtraction, url string) int {
	filled := 0
	fillDim := func(dst *model.Field, src *valueUnit) {
		if dst.IsSet() || src == nil || src.Value == nil {
			return
		}
		*dst = model.Field{
			Value:     *src.Value,
			Unit:      src.Unit,
			SourceURL: url,
			Tier:      model.TierThirdParty,
			Notes:     gapFillNote,
		}
		filled++
	}

	fillDim(&e.Dimensions.Net.Weight, result.NetWeight)
	fillDim(&e.Dimensions.Packaged.Weight, result.PackagedWeight)
	fillDim(&e.Dimensions.Packaged.Height, result.PackagedHeight)
	fillDim(&e.Dimensions.Packaged.Length, result.PackagedLength)
	fillDim(&e.Dimensions.Packaged.Width, result.PackagedWidth)

	if (e.Warranty == nil || !e.Warranty.Duration.IsSet()) && result.WarrantyDurationMonths != nil {
		e.Warranty = &model.WarrantyInfo{
			Duration: model.Field{
				Value:     *result.WarrantyDurationMonths,
				Unit:      "months",
				SourceURL: url,
				Tier:      model.TierThirdParty,
				Notes:     gapFillNote,
			},
			SourceURL: url,
			Tier:      model.TierThirdParty,
		}
		filled++
	}

	if !e.Descriptions.Short.IsSet() && result.ShortDescription != nil {
		text := strings.TrimSpace(*result.ShortDescription)
		if len(text) > 10 {
			e.Descriptions.Short = model.Field{
				Value:     text,
				SourceURL: url,
				Tier:      model.TierThirdParty,
				Notes:     gapFillNote,
			}
			filled++
		}
	}
	return filled
}
