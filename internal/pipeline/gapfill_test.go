package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/anthropic"
)

// enrichedWithGaps returns an aggregate where only the named critical gaps
// are still open.
func enrichedWithGaps(open ...string) *model.EnrichedProduct {
	e := model.NewEnrichedProduct()
	e.Dimensions.Net.Weight = field(2.0, "kg", model.TierOfficial)
	e.Dimensions.Packaged.Weight = field(2.4, "kg", model.TierOfficial)
	e.Dimensions.Packaged.Height = field(30.0, "cm", model.TierOfficial)
	e.Warranty = &model.WarrantyInfo{
		Duration: field(36.0, "months", model.TierOfficial),
		Tier:     model.TierOfficial,
	}
	e.Descriptions.Short = field("A compact cordless drill.", "", model.TierOfficial)

	for _, gap := range open {
		switch gap {
		case "net_weight":
			e.Dimensions.Net.Weight = model.NotFound()
		case "packaged_weight":
			e.Dimensions.Packaged.Weight = model.NotFound()
		case "packaged_dims":
			e.Dimensions.Packaged.Height = model.NotFound()
		case "warranty":
			e.Warranty = nil
		case "short_description":
			e.Descriptions.Short = model.NotFound()
		}
	}
	return e
}

func TestOpenGaps(t *testing.T) {
	assert.Empty(t, openGaps(enrichedWithGaps()))
	assert.Equal(t, []string{"net_weight", "warranty"}, openGaps(enrichedWithGaps("net_weight", "warranty")))

	// All three packaged linear dimensions must be missing for the
	// packaged_dims gap to open.
	e := enrichedWithGaps("packaged_dims")
	assert.Equal(t, []string{"packaged_dims"}, openGaps(e))
	e.Dimensions.Packaged.Width = field(20.0, "cm", model.TierThirdParty)
	assert.Empty(t, openGaps(e))
}

func TestApplyGapFill_NeverOverwrites(t *testing.T) {
	e := enrichedWithGaps()
	before := e.Dimensions.Net.Weight

	filled := applyGapFill(e, gapFillExtraction{
		NetWeight:              &valueUnit{Value: floatPtr(9.9), Unit: "kg"},
		WarrantyDurationMonths: floatPtr(12),
		ShortDescription:       strPtr("Completely different text that must not replace the original."),
	}, "https://shop.example/p")

	assert.Zero(t, filled)
	assert.Equal(t, before, e.Dimensions.Net.Weight)
	assert.Equal(t, float64(36), e.Warranty.Duration.Value)
	assert.Equal(t, "A compact cordless drill.", e.Descriptions.Short.String())
}

func TestApplyGapFill_FillsOpenGaps(t *testing.T) {
	e := enrichedWithGaps("net_weight", "warranty", "short_description")

	filled := applyGapFill(e, gapFillExtraction{
		NetWeight:              &valueUnit{Value: floatPtr(1.5), Unit: "kg"},
		WarrantyDurationMonths: floatPtr(24),
		ShortDescription:       strPtr("A sturdy drill for home and trade use."),
	}, "https://shop.example/p")

	assert.Equal(t, 3, filled)
	w := e.Dimensions.Net.Weight
	assert.Equal(t, 1.5, w.Value)
	assert.Equal(t, model.TierThirdParty, w.Tier)
	assert.Equal(t, gapFillNote, w.Notes)
	require.NotNil(t, e.Warranty)
	assert.Equal(t, float64(24), e.Warranty.Duration.Value)
	assert.True(t, e.Descriptions.Short.IsSet())
}

func TestRunGapFill_SkipsWithoutGaps(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Enriched = enrichedWithGaps()

	err := pl.runGapFill(context.Background(), product)

	require.NoError(t, err)
	m.store.AssertNotCalled(t, "ListScrapedPages", mock.Anything, mock.Anything)
	require.NotEmpty(t, product.Log)
	assert.Equal(t, "skipped", product.Log[len(product.Log)-1].Status)
}

func TestRunGapFill_SkipsWithoutReservePages(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Enriched = enrichedWithGaps("net_weight")

	m.store.On("ListScrapedPages", mock.Anything, product.ID).Return([]model.ScrapedPage{
		{URL: "https://brand.example/p", SourceTier: model.SourceManufacturer, Success: true, Extracted: true, Markdown: strings.Repeat("x", 500)},
		{URL: "https://tiny.example/p", SourceTier: model.SourceThirdParty, Success: true, Markdown: "too short"},
	}, nil)

	err := pl.runGapFill(context.Background(), product)

	require.NoError(t, err)
	m.anthropic.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestRunGapFill_EarlyExitChecksAllGaps(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Enriched = enrichedWithGaps("net_weight", "warranty")

	reserve := []model.ScrapedPage{
		{ProductID: product.ID, URL: "https://shop-a.example/p", SourceTier: model.SourceThirdParty, Success: true, Markdown: strings.Repeat("page one content ", 20)},
		{ProductID: product.ID, URL: "https://shop-b.example/p", SourceTier: model.SourceThirdParty, Success: true, Markdown: strings.Repeat("page two content ", 20)},
	}
	m.store.On("ListScrapedPages", mock.Anything, product.ID).Return(reserve, nil)
	m.store.On("UpsertScrapedPage", mock.Anything, mock.Anything).Return(nil)

	// Page one answers only the warranty gap; page two must still be
	// consulted for the net weight.
	m.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"warranty_duration_months": 24}`), nil).Once()
	m.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"net_weight": {"value": 1.5, "unit": "kg"}}`), nil).Once()

	err := pl.runGapFill(context.Background(), product)

	require.NoError(t, err)
	m.anthropic.AssertNumberOfCalls(t, "CreateMessage", 2)
	assert.Equal(t, float64(24), product.Enriched.Warranty.Duration.Value)
	assert.Equal(t, 1.5, product.Enriched.Dimensions.Net.Weight.Value)
	assert.Empty(t, openGaps(product.Enriched))
}

func TestRunGapFill_SecondPromptOmitsFilledGaps(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Enriched = enrichedWithGaps("net_weight", "warranty")

	reserve := []model.ScrapedPage{
		{ProductID: product.ID, URL: "https://shop-a.example/p", SourceTier: model.SourceThirdParty, Success: true, Markdown: strings.Repeat("page one content ", 20)},
		{ProductID: product.ID, URL: "https://shop-b.example/p", SourceTier: model.SourceThirdParty, Success: true, Markdown: strings.Repeat("page two content ", 20)},
	}
	m.store.On("ListScrapedPages", mock.Anything, product.ID).Return(reserve, nil)
	m.store.On("UpsertScrapedPage", mock.Anything, mock.Anything).Return(nil)

	var prompts []string
	record := func(args mock.Arguments) {
		req := args.Get(1).(anthropic.MessageRequest)
		prompts = append(prompts, req.Messages[0].Content)
	}
	m.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Run(record).Return(textResponse(`{"warranty_duration_months": 24}`), nil).Once()
	m.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Run(record).Return(textResponse(`{"net_weight": {"value": 1.5, "unit": "kg"}}`), nil).Once()

	err := pl.runGapFill(context.Background(), product)

	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "warranty_duration_months")
	assert.Contains(t, prompts[0], "net_weight")
	// After the warranty fills, the second page is only asked about the
	// remaining net-weight gap.
	assert.Contains(t, prompts[1], "net_weight")
	assert.NotContains(t, prompts[1], "warranty_duration_months")
}
