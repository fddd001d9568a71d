package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetProduct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProduct(ctx, "3838989712345", "Akumulatorski vijačnik 18V", "Makita")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusPending, created.Status)

	got, err := s.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "3838989712345", got.EAN)
	assert.Equal(t, "Akumulatorski vijačnik 18V", got.Name)
	assert.Equal(t, "Makita", got.Brand)
	assert.Nil(t, got.Enriched)
	assert.Empty(t, got.Log)
}

func TestGetProduct_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProduct(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product not found")
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, "123", "Test", "")
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, p.ID, model.StatusSearching))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSearching, got.Status)

	err = s.UpdateStatus(ctx, "missing", model.StatusDone)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product not found")
}

func TestSaveProductRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, "4006381333931", "Rollerball pen", "")
	require.NoError(t, err)

	p.Brand = "Stabilo"
	p.Status = model.StatusDone
	p.Classification = &model.ProductClassification{
		ProductType:     "writing instrument",
		Brand:           "Stabilo",
		BrandConfidence: 0.95,
	}
	p.SearchResults = []model.SearchResult{
		{URL: "https://stabilo.com/p/1", Title: "Stabilo", SourceType: model.SourceManufacturer},
	}
	p.Enriched = model.NewEnrichedProduct()
	p.Enriched.Color = model.Field{Value: "red", Tier: model.TierOfficial, SourceURL: "https://stabilo.com/p/1"}
	p.Validation = &model.ValidationReport{OverallQuality: "good"}
	p.AppendLog("validate", "plausibility", "ok", "no issues", 0)

	require.NoError(t, s.SaveProduct(ctx, p))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stabilo", got.Brand)
	assert.Equal(t, model.StatusDone, got.Status)
	require.NotNil(t, got.Classification)
	assert.InDelta(t, 0.95, got.Classification.BrandConfidence, 1e-9)
	require.Len(t, got.SearchResults, 1)
	assert.Equal(t, model.SourceManufacturer, got.SearchResults[0].SourceType)
	require.NotNil(t, got.Enriched)
	assert.Equal(t, "red", got.Enriched.Color.Value)
	assert.Equal(t, model.TierOfficial, got.Enriched.Color.Tier)
	require.NotNil(t, got.Validation)
	assert.Equal(t, "good", got.Validation.OverallQuality)
	require.Len(t, got.Log, 1)
	assert.Equal(t, "validate", got.Log[0].Phase)
}

func TestListProducts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1, err := s.CreateProduct(ctx, "111", "A", "BrandX")
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, "222", "B", "BrandY")
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, p1.ID, model.StatusDone))

	all, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	done, err := s.ListProducts(ctx, ProductFilter{Status: model.StatusDone})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, p1.ID, done[0].ID)

	byEAN, err := s.ListProducts(ctx, ProductFilter{EAN: "222"})
	require.NoError(t, err)
	require.Len(t, byEAN, 1)
	assert.Equal(t, "B", byEAN[0].Name)

	byBrand, err := s.ListProducts(ctx, ProductFilter{Brand: "brandy"})
	require.NoError(t, err)
	require.Len(t, byBrand, 1)
	assert.Equal(t, "222", byBrand[0].EAN)

	limited, err := s.ListProducts(ctx, ProductFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestImportProducts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.ImportProducts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.ImportProducts(ctx, []model.Product{
		{EAN: "100", Name: "First"},
		{EAN: "200", Name: "Second", Brand: "Bosch"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, p := range all {
		assert.Equal(t, model.StatusPending, p.Status)
	}
}

func TestUpsertScrapedPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, "123", "Test", "")
	require.NoError(t, err)

	page := &model.ScrapedPage{
		ProductID:  p.ID,
		URL:        "https://example.com/product",
		SourceTier: model.SourceThirdParty,
		Markdown:   "# Product",
		Success:    true,
	}
	require.NoError(t, s.UpsertScrapedPage(ctx, page))

	// Same (product, url) updates in place rather than inserting a duplicate.
	page.Extracted = true
	page.Markdown = "# Product v2"
	require.NoError(t, s.UpsertScrapedPage(ctx, page))

	pages, err := s.ListScrapedPages(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "# Product v2", pages[0].Markdown)
	assert.True(t, pages[0].Success)
	assert.True(t, pages[0].Extracted)
	assert.False(t, pages[0].GapFilled)

	// A different URL is a second row.
	require.NoError(t, s.UpsertScrapedPage(ctx, &model.ScrapedPage{
		ProductID: p.ID,
		URL:       "https://example.com/other",
	}))
	pages, err = s.ListScrapedPages(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestBrandOrigin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	miss, err := s.GetBrandOrigin(ctx, "Unknown")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, s.UpsertBrandOrigin(ctx, model.BrandOrigin{
		Brand:     "Makita",
		Country:   "Japan",
		Tier:      model.TierThirdParty,
		SourceURL: "https://example.com",
		UpdatedAt: time.Now().UTC(),
	}))

	// Lookups are case-insensitive on brand.
	got, err := s.GetBrandOrigin(ctx, "MAKITA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "makita", got.Brand)
	assert.Equal(t, "Japan", got.Country)
	assert.Equal(t, model.TierThirdParty, got.Tier)

	// Last writer wins.
	require.NoError(t, s.UpsertBrandOrigin(ctx, model.BrandOrigin{
		Brand:   "makita",
		Country: "Japan",
		Tier:    model.TierOfficial,
	}))
	got, err = s.GetBrandOrigin(ctx, "makita")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.TierOfficial, got.Tier)
}
