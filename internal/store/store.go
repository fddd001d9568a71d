package store

import (
	"context"

	"github.com/sells-group/enrich-cli/internal/model"
)

// ProductFilter specifies criteria for listing products.
type ProductFilter struct {
	Status model.Status `json:"status,omitempty"`
	EAN    string       `json:"ean,omitempty"`
	Brand  string       `json:"brand,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, ean, name, brand string) (*model.Product, error)
	ImportProducts(ctx context.Context, products []model.Product) (int64, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	UpdateStatus(ctx context.Context, productID string, status model.Status) error
	SaveProduct(ctx context.Context, p *model.Product) error

	// Scraped page cache
	UpsertScrapedPage(ctx context.Context, page *model.ScrapedPage) error
	ListScrapedPages(ctx context.Context, productID string) ([]model.ScrapedPage, error)

	// Brand origin cache
	GetBrandOrigin(ctx context.Context, brand string) (*model.BrandOrigin, error)
	UpsertBrandOrigin(ctx context.Context, origin model.BrandOrigin) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
