package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/norm"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

const validateInstructions = `Review this enriched product record for plausibility:
- Are the physical measurements plausible for this kind of product?
- Are net and packaged dimensions consistent with each other?
- Do any values conflict (e.g. specs contradicting dimensions)?
- Is important data missing that the sources should have had?

Respond as {"overall_quality": "good"|"acceptable"|"needs_review", "issues": [{"field", "severity": "error"|"warning"|"info", "message"}], "review_reason": string}.`

// runValidate normalizes units, applies deterministic corrections, fills
// color and country through their fallback ladders, and runs the LLM
// plausibility check. The check degrades to a conservative needs_review
// verdict when the collaborator fails; validation itself never fails a run.
func (pl *Pipeline) runValidate(ctx context.Context, product *model.Product) error {
	if product.Enriched == nil {
		product.Enriched = model.NewEnrichedProduct()
	}
	enriched := product.Enriched

	norm.NormalizeDimensionSet(&enriched.Dimensions.Net)
	norm.NormalizeDimensionSet(&enriched.Dimensions.Packaged)
	norm.ApplyCorrections(enriched, norm.WeightReconcileConfig{
		MaxRelativeShortfall: pl.cfg.Validation.WeightShortfallPct,
		MaxAbsoluteShortfall: pl.cfg.Validation.WeightShortfallKg,
	})

	visionCost := pl.fillColor(ctx, product)
	pl.fillCountry(ctx, product)

	report, checkCost := pl.plausibilityCheck(ctx, product)
	product.Validation = report

	product.AppendLog("validating", "", "ok",
		fmt.Sprintf("quality=%s issues=%d", report.OverallQuality, len(report.Issues)),
		visionCost+checkCost)
	return nil
}

// fillColor runs the color fallback ladder when extraction found none:
// keyword inference from the product name first, then a vision call on the
// primary image. Both produce inferred-tier values.
func (pl *Pipeline) fillColor(ctx context.Context, product *model.Product) float64 {
	enriched := product.Enriched
	if enriched.Color.IsSet() {
		return 0
	}

	if color, keyword := norm.ColorFromName(product.Name); color != "" {
		enriched.Color = model.Field{
			Value: color,
			Tier:  model.TierInferred,
			Notes: fmt.Sprintf("Extracted from product name keyword: %q", keyword),
		}
		return 0
	}

	if enriched.PrimaryImageURL == "" {
		return 0
	}
	type colorAnswer struct {
		Color string `json:"color"`
	}
	answer, usage, err := anthropic.ExtractTyped[colorAnswer](ctx, pl.anthropic, anthropic.ExtractRequest{
		Model:        pl.cfg.Anthropic.HaikuModel,
		MaxTokens:    256,
		Instructions: `What is the dominant color of the product in this image? Answer as {"color": string} with a single common color name. For bare-metal tools answer "silver".`,
		ImageURL:     enriched.PrimaryImageURL,
	})
	if err != nil {
		pl.log.Warn("vision color call failed",
			zap.String("product_id", product.ID), zap.Error(err))
		return 0
	}
	usage.LogCost(pl.cfg.Anthropic.HaikuModel, "validate_vision")

	color := norm.CanonicalColor(answer.Color)
	if color != "" && !norm.IsJunk(color) {
		enriched.Color = model.Field{
			Value:     color,
			SourceURL: enriched.PrimaryImageURL,
			Tier:      model.TierInferred,
			Notes:     "Inferred from product image",
		}
	}
	return pl.claudeCost(pl.cfg.Anthropic.HaikuModel, usage)
}

// fillCountry resolves a missing country of origin from the brand origin
// cache. A lookup failure leaves the field not_found; origin is best-effort.
func (pl *Pipeline) fillCountry(ctx context.Context, product *model.Product) {
	enriched := product.Enriched
	if enriched.CountryOfOrigin.IsSet() || product.Brand == "" {
		return
	}
	origin, err := pl.lookupBrandOrigin(ctx, product.Brand)
	if err != nil {
		pl.log.Warn("brand origin lookup failed",
			zap.String("product_id", product.ID),
			zap.String("brand", product.Brand),
			zap.Error(err))
		return
	}
	if origin == nil || origin.Country == "" {
		return
	}
	enriched.CountryOfOrigin = model.Field{
		Value:     norm.CanonicalCountry(origin.Country),
		SourceURL: origin.SourceURL,
		Tier:      origin.Tier,
		Notes:     "Inferred from brand origin",
	}
}

// plausibilityCheck asks the LLM for a quality verdict over the full
// aggregate. Collaborator failure yields a synthetic needs_review report so
// a human looks at the record instead of the run crashing.
func (pl *Pipeline) plausibilityCheck(ctx context.Context, product *model.Product) (*model.ValidationReport, float64) {
	summary, err := json.Marshal(product.Enriched)
	if err != nil {
		summary = []byte("{}")
	}

	report, usage, err := anthropic.ExtractTyped[model.ValidationReport](ctx, pl.anthropic, anthropic.ExtractRequest{
		Model:     pl.cfg.Anthropic.SonnetModel,
		MaxTokens: pl.cfg.Anthropic.MaxTokens,
		Instructions: validateInstructions + fmt.Sprintf(
			"\n\nProduct: %s %s (EAN: %s)", product.Brand, product.Name, product.EAN),
		Content: string(summary),
	})
	if err != nil {
		pl.log.Warn("plausibility check failed, routing to review",
			zap.String("product_id", product.ID), zap.Error(err))
		return &model.ValidationReport{
			OverallQuality: "needs_review",
			Issues: []model.ValidationIssue{{
				Field:    "system",
				Severity: "warning",
				Message:  "plausibility check failed: " + err.Error(),
			}},
			ReviewReason: "Automated sanity check could not complete",
		}, 0
	}
	usage.LogCost(pl.cfg.Anthropic.SonnetModel, "validate")

	if strings.TrimSpace(report.OverallQuality) == "" {
		report.OverallQuality = "acceptable"
	}
	return &report, pl.claudeCost(pl.cfg.Anthropic.SonnetModel, usage)
}
