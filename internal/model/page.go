package model

import "time"

// ScrapedPage is a cache entry for one scraped URL, unique per
// (product_id, url). Written once per scrape, read back by the extractor
// for marker resolution and by gap-fill when filtering to unused pages.
type ScrapedPage struct {
	ProductID  string     `json:"product_id"`
	URL        string     `json:"url"`
	SourceTier SourceTier `json:"source_tier"`
	Markdown   string     `json:"markdown"`
	Success    bool       `json:"success"`
	Extracted  bool       `json:"extracted"`
	GapFilled  bool       `json:"gap_filled"`
	ScrapedAt  time.Time  `json:"scraped_at"`
}

// SearchResult is one web search hit, tagged with its source type.
type SearchResult struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	SourceType  SourceTier `json:"source_type"`
}

// ProductClassification is the triage verdict for a sparse product record.
type ProductClassification struct {
	ProductType     string  `json:"product_type"`
	Brand           string  `json:"brand"`
	BrandConfidence float64 `json:"brand_confidence"`
	ModelNumber     string  `json:"model_number,omitempty"`
	Reasoning       string  `json:"reasoning,omitempty"`
}

// BrandConfident reports whether triage identified the brand confidently enough
// to skip the barcode lookup stage.
func (c *ProductClassification) BrandConfident(threshold float64) bool {
	return c != nil && c.Brand != "" && c.BrandConfidence >= threshold
}

// BrandOrigin is a long-lived cache row amortizing country-of-origin
// searches across products sharing a brand. Keyed by lowercased brand,
// last-writer-wins.
type BrandOrigin struct {
	Brand     string    `json:"brand"`
	Country   string    `json:"country"`
	Tier      Tier      `json:"confidence_tier"`
	SourceURL string    `json:"source_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
