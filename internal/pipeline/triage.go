package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

// runTriage classifies the sparse input record in one LLM call: product
// type, brand with a confidence score, and model number when the name
// carries one. The brand confidence decides whether brand lookup runs next.
func (pl *Pipeline) runTriage(ctx context.Context, product *model.Product) error {
	var sb strings.Builder
	sb.WriteString("Classify this product record from a retail catalog.\n\n")
	fmt.Fprintf(&sb, "Product name: %s\nEAN: %s\n", product.Name, product.EAN)
	if product.Brand != "" {
		fmt.Fprintf(&sb, "Known brand: %s\n", product.Brand)
	}
	sb.WriteString(`
Identify:
- product_type: a short category label (e.g. "cordless drill", "kitchen scale")
- brand: the manufacturer brand, or "" if you cannot tell
- brand_confidence: 0.0 to 1.0, how certain you are of the brand
- model_number: the model designation if the name contains one
- reasoning: one sentence

Product names may be in Slovenian, German, or English.`)

	classification, usage, err := anthropic.ExtractTyped[model.ProductClassification](ctx, pl.anthropic, anthropic.ExtractRequest{
		Model:        pl.cfg.Anthropic.HaikuModel,
		MaxTokens:    pl.cfg.Anthropic.MaxTokens,
		Instructions: sb.String(),
	})
	if err != nil {
		return eris.Wrap(err, "triage: classify")
	}
	usage.LogCost(pl.cfg.Anthropic.HaikuModel, "triage")

	product.Classification = &classification
	if product.Brand == "" && classification.BrandConfident(pl.cfg.Triage.BrandConfidenceThreshold) {
		product.Brand = classification.Brand
	}

	pl.log.Info("classified",
		zap.String("product_id", product.ID),
		zap.String("product_type", classification.ProductType),
		zap.String("brand", classification.Brand),
		zap.Float64("brand_confidence", classification.BrandConfidence))

	product.AppendLog("classifying", "classify", "ok",
		fmt.Sprintf("type=%s brand=%s confidence=%.2f",
			classification.ProductType, classification.Brand, classification.BrandConfidence),
		pl.claudeCost(pl.cfg.Anthropic.HaikuModel, usage))
	return nil
}
