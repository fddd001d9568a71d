package model

import "strings"

// DimensionSet holds the seven physical measurements tracked per product.
type DimensionSet struct {
	Height   Field `json:"height"`
	Length   Field `json:"length"`
	Width    Field `json:"width"`
	Depth    Field `json:"depth"`
	Weight   Field `json:"weight"`
	Diameter Field `json:"diameter"`
	Volume   Field `json:"volume"`
}

// EmptyDimensionSet returns a DimensionSet with every field not_found.
func EmptyDimensionSet() DimensionSet {
	return DimensionSet{
		Height:   NotFound(),
		Length:   NotFound(),
		Width:    NotFound(),
		Depth:    NotFound(),
		Weight:   NotFound(),
		Diameter: NotFound(),
		Volume:   NotFound(),
	}
}

// Fields returns pointers to the set's fields keyed by canonical name.
// Iteration order follows DimensionFieldNames.
func (d *DimensionSet) Fields() map[string]*Field {
	return map[string]*Field{
		"height":   &d.Height,
		"length":   &d.Length,
		"width":    &d.Width,
		"depth":    &d.Depth,
		"weight":   &d.Weight,
		"diameter": &d.Diameter,
		"volume":   &d.Volume,
	}
}

// DimensionFieldNames lists the canonical dimension field names in order.
var DimensionFieldNames = []string{"height", "length", "width", "depth", "weight", "diameter", "volume"}

// ProductDimensions pairs measurements of the product alone (net) with
// measurements of the product plus its shipping packaging (packaged).
// Packaged linear dimensions may legitimately be smaller than net ones for
// assembly-in-box products, so no ordering is enforced between the two sets.
type ProductDimensions struct {
	Net      DimensionSet `json:"net"`
	Packaged DimensionSet `json:"packaged"`
}

// Descriptions holds resolved description text and deduplicated features.
type Descriptions struct {
	Short     Field    `json:"short"`
	Marketing Field    `json:"marketing"`
	Features  []string `json:"features,omitempty"`
}

// AddFeatures appends features, deduplicating case-insensitively while
// preserving first-seen order.
func (d *Descriptions) AddFeatures(features []string) {
	seen := make(map[string]bool, len(d.Features))
	for _, f := range d.Features {
		seen[strings.ToLower(strings.TrimSpace(f))] = true
	}
	for _, f := range features {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := strings.ToLower(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		d.Features = append(d.Features, f)
	}
}

// TechnicalSpec is one named specification value.
type TechnicalSpec struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Unit      string `json:"unit,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Tier      Tier   `json:"confidence_tier"`
}

// TechnicalData is a spec collection deduplicated by lowercased name.
type TechnicalData []TechnicalSpec

// Upsert merges a spec into the collection. Specs are keyed by lowercased
// name; on a key collision the higher tier wins, first-seen on a tie.
func (td TechnicalData) Upsert(spec TechnicalSpec) TechnicalData {
	key := strings.ToLower(strings.TrimSpace(spec.Name))
	if key == "" || spec.Value == "" {
		return td
	}
	for i := range td {
		if strings.ToLower(strings.TrimSpace(td[i].Name)) == key {
			if spec.Tier.Rank() > td[i].Tier.Rank() {
				td[i] = spec
			}
			return td
		}
	}
	return append(td, spec)
}

// WarrantyInfo is filled atomically from a single source so that a duration
// from one page is never combined with conditions from an unrelated one.
type WarrantyInfo struct {
	Duration   Field  `json:"duration"`
	Type       string `json:"type,omitempty"`
	Conditions string `json:"conditions,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	Tier       Tier   `json:"confidence_tier"`
}

// EnrichedProduct is the aggregate persisted per product. Created empty at
// the start of extraction, progressively populated by each page's
// contribution, then mutated in place by gap-fill and validation. Every
// mutation is persisted as a full overwrite keyed by product id.
type EnrichedProduct struct {
	Dimensions      ProductDimensions `json:"dimensions"`
	Descriptions    Descriptions      `json:"descriptions"`
	TechnicalData   TechnicalData     `json:"technical_data,omitempty"`
	Warranty        *WarrantyInfo     `json:"warranty,omitempty"`
	Documents       []ProductDocument `json:"documents,omitempty"`
	Color           Field             `json:"color"`
	CountryOfOrigin Field             `json:"country_of_origin"`
	PrimaryImageURL string            `json:"primary_image_url,omitempty"`
	ImageURLs       []string          `json:"image_urls,omitempty"`
}

// NewEnrichedProduct returns an empty aggregate with all fields not_found.
func NewEnrichedProduct() *EnrichedProduct {
	return &EnrichedProduct{
		Dimensions: ProductDimensions{
			Net:      EmptyDimensionSet(),
			Packaged: EmptyDimensionSet(),
		},
		Descriptions: Descriptions{
			Short:     NotFound(),
			Marketing: NotFound(),
		},
		Color:           NotFound(),
		CountryOfOrigin: NotFound(),
	}
}
