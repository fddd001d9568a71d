package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
	"github.com/sells-group/enrich-cli/pkg/perplexity"
)

func TestRunBrandLookup_FillsBrand(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Brand = ""
	product.Classification = &model.ProductClassification{ProductType: "drill"}

	m.firecrawl.On("Scrape", mock.Anything, mock.MatchedBy(func(req firecrawl.ScrapeRequest) bool {
		return req.URL == "https://www.barcodelookup.com/3838909123456"
	})).Return(&firecrawl.ScrapeResponse{
		Success: true,
		Data:    firecrawl.PageData{Markdown: "EAN 3838909123456: Makita DDF485 cordless drill, Tools category"},
	}, nil)

	m.anthropic.On("CreateMessage", mock.Anything, instructionsContain("barcode database page")).
		Return(textResponse(`{"brand": "Makita", "product_name": "DDF485 cordless drill", "category": "Tools"}`), nil)

	err := pl.runBrandLookup(context.Background(), product)

	require.NoError(t, err)
	assert.Equal(t, "Makita", product.Brand)
	assert.Equal(t, "Makita", product.Classification.Brand)
}

func TestRunBrandLookup_NoMatchIsNotAnError(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Brand = ""

	m.firecrawl.On("Scrape", mock.Anything, mock.Anything).Return(&firecrawl.ScrapeResponse{
		Success: true,
		Data:    firecrawl.PageData{Markdown: "No results found for this barcode."},
	}, nil)
	m.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"brand": "", "product_name": "", "category": ""}`), nil)

	err := pl.runBrandLookup(context.Background(), product)

	require.NoError(t, err)
	assert.Empty(t, product.Brand)
}

func TestRunBrandLookup_ScrapeFailureIsStageFatal(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()

	m.firecrawl.On("Scrape", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	err := pl.runBrandLookup(context.Background(), product)
	require.Error(t, err)
}

func TestLookupBrandOrigin_CacheHit(t *testing.T) {
	pl, m := newTestPipeline()

	cached := &model.BrandOrigin{Brand: "Makita", Country: "Japan", Tier: model.TierInferred, UpdatedAt: time.Now()}
	m.store.On("GetBrandOrigin", mock.Anything, "Makita").Return(cached, nil)

	origin, err := pl.lookupBrandOrigin(context.Background(), "Makita")

	require.NoError(t, err)
	assert.Equal(t, "Japan", origin.Country)
	m.perplexity.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
}

func TestLookupBrandOrigin_MissSearchesAndCaches(t *testing.T) {
	pl, m := newTestPipeline()

	m.store.On("GetBrandOrigin", mock.Anything, "Makita").Return(nil, nil)
	m.perplexity.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return len(req.Messages) == 1
	})).Return(&perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "Japan\n\nMakita is headquartered in Anjo."}}},
	}, nil)
	m.store.On("UpsertBrandOrigin", mock.Anything, mock.MatchedBy(func(o model.BrandOrigin) bool {
		return o.Brand == "Makita" && o.Country == "Japan" && o.Tier == model.TierInferred
	})).Return(nil)

	origin, err := pl.lookupBrandOrigin(context.Background(), "Makita")

	require.NoError(t, err)
	require.NotNil(t, origin)
	assert.Equal(t, "Japan", origin.Country)
	m.store.AssertExpectations(t)
}

func TestLookupBrandOrigin_UnusableAnswerNotCached(t *testing.T) {
	pl, m := newTestPipeline()

	m.store.On("GetBrandOrigin", mock.Anything, "Acme").Return(nil, nil)
	m.perplexity.On("ChatCompletion", mock.Anything, mock.Anything).Return(&perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{
			Content: "The brand's manufacturing footprint is complicated and spans several continents without a clear primary country of origin to name here.",
		}}},
	}, nil)

	origin, err := pl.lookupBrandOrigin(context.Background(), "Acme")

	require.NoError(t, err)
	assert.Nil(t, origin)
	m.store.AssertNotCalled(t, "UpsertBrandOrigin", mock.Anything, mock.Anything)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "Japan", firstLine("Japan\nMore detail."))
	assert.Equal(t, "Japan", firstLine("**Japan.**"))
	assert.Equal(t, "Germany", firstLine("  Germany  "))
}
