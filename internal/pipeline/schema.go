package pipeline

import (
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// valueUnit is one measured quantity as the extraction call reports it.
// A nil Value means the page did not state the measurement.
type valueUnit struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

// dimensionGroup mirrors DimensionSet in extraction-output form.
type dimensionGroup struct {
	Height   *valueUnit `json:"height"`
	Length   *valueUnit `json:"length"`
	Width    *valueUnit `json:"width"`
	Depth    *valueUnit `json:"depth"`
	Weight   *valueUnit `json:"weight"`
	Diameter *valueUnit `json:"diameter"`
	Volume   *valueUnit `json:"volume"`
}

func (g *dimensionGroup) fields() map[string]*valueUnit {
	return map[string]*valueUnit{
		"height":   g.Height,
		"length":   g.Length,
		"width":    g.Width,
		"depth":    g.Depth,
		"weight":   g.Weight,
		"diameter": g.Diameter,
		"volume":   g.Volume,
	}
}

// structuredExtraction is the first extraction pass: physical measurements,
// color, country of origin, and image URLs.
type structuredExtraction struct {
	Net             dimensionGroup `json:"net"`
	Packaged        dimensionGroup `json:"packaged"`
	Color           *string        `json:"color"`
	CountryOfOrigin *string        `json:"country_of_origin"`
	PrimaryImageURL *string        `json:"primary_image_url"`
	ImageURLs       []string       `json:"image_urls"`
}

// markerPair fingerprints a passage of page text by its first and last ~50
// characters, so the full text can be recovered from cached content without
// paying for it in extraction output tokens.
type markerPair struct {
	StartMarker string `json:"start_marker"`
	EndMarker   string `json:"end_marker"`
}

// specEntry is one technical specification row from the content pass.
type specEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// warrantyExtraction is the warranty block from the content pass.
type warrantyExtraction struct {
	DurationMonths *float64 `json:"duration_months"`
	Type           string   `json:"type"`
	Conditions     string   `json:"conditions"`
}

func (w *warrantyExtraction) reported() bool {
	return w.DurationMonths != nil || strings.TrimSpace(w.Type) != "" ||
		strings.TrimSpace(w.Conditions) != ""
}

func (w *warrantyExtraction) toInfo(url string, tier model.Tier) *model.WarrantyInfo {
	info := &model.WarrantyInfo{
		Duration:   model.NotFound(),
		Type:       strings.TrimSpace(w.Type),
		Conditions: strings.TrimSpace(w.Conditions),
		SourceURL:  url,
		Tier:       tier,
	}
	if w.DurationMonths != nil {
		info.Duration = model.Field{
			Value:     *w.DurationMonths,
			Unit:      "months",
			SourceURL: url,
			Tier:      tier,
		}
	}
	return info
}

// contentExtraction is the second extraction pass: description markers,
// features, technical specs, and warranty.
type contentExtraction struct {
	ShortDescription *markerPair         `json:"short_description"`
	MarketingText    *markerPair         `json:"marketing_text"`
	Features         []string            `json:"features"`
	TechnicalSpecs   []specEntry         `json:"technical_specs"`
	Warranty         *warrantyExtraction `json:"warranty"`
}

// extractedPage collects both passes' output for one scraped page.
type extractedPage struct {
	URL        string
	SourceTier model.SourceTier
	Structured *structuredExtraction
	Content    *contentExtraction
}
