package model

// Tier is the ranked trust level of an observed value, derived from the
// trustworthiness of the source it was read from.
type Tier string

const (
	TierOfficial   Tier = "official"
	TierAuthorized Tier = "authorized"
	TierThirdParty Tier = "third_party"
	TierInferred   Tier = "inferred"
	TierNotFound   Tier = "not_found"
)

// Rank orders tiers for survivorship comparison. Higher is more trusted.
func (t Tier) Rank() int {
	switch t {
	case TierOfficial:
		return 4
	case TierAuthorized:
		return 3
	case TierThirdParty:
		return 2
	case TierInferred:
		return 1
	default:
		return 0
	}
}

// SourceTier classifies a scraped page's origin.
type SourceTier string

const (
	SourceManufacturer SourceTier = "manufacturer"
	SourceAuthorized   SourceTier = "authorized_distributor"
	SourceThirdParty   SourceTier = "third_party"
	SourceIrrelevant   SourceTier = "irrelevant"
)

// Rank orders source tiers for page processing priority. Higher first.
func (s SourceTier) Rank() int {
	switch s {
	case SourceManufacturer:
		return 3
	case SourceAuthorized:
		return 2
	case SourceThirdParty:
		return 1
	default:
		return 0
	}
}

// ConfidenceTier maps a page's source tier to the confidence tier its
// directly-stated values carry. Values are never upgraded past this.
func (s SourceTier) ConfidenceTier() Tier {
	switch s {
	case SourceManufacturer:
		return TierOfficial
	case SourceAuthorized:
		return TierAuthorized
	default:
		return TierThirdParty
	}
}

// Field is the atomic unit of enrichment data: a value with the confidence
// tier of the source it came from. A nil value always carries TierNotFound,
// distinguishing "not yet observed" from "observed but absent on source".
type Field struct {
	Value     any    `json:"value"`
	Unit      string `json:"unit,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Tier      Tier   `json:"confidence_tier"`
	Notes     string `json:"notes,omitempty"`
}

// NotFound returns the canonical empty field.
func NotFound() Field {
	return Field{Tier: TierNotFound}
}

// IsSet reports whether the field carries an observed value.
func (f Field) IsSet() bool {
	return f.Value != nil && f.Tier != TierNotFound && f.Tier != ""
}

// Float64 returns the field value as a float64 when it is numeric.
func (f Field) Float64() (float64, bool) {
	switch v := f.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// String returns the field value as a string when it is one.
func (f Field) String() string {
	if s, ok := f.Value.(string); ok {
		return s
	}
	return ""
}
