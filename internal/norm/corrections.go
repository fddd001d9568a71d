package norm

import (
	"fmt"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// colorMap maps non-English (and pass-through English) color tokens to a
// canonical English color. Slovenian stems cover declined forms.
var colorMap = map[string]string{
	"črn": "black", "črna": "black", "črni": "black",
	"bel": "white", "bela": "white", "beli": "white",
	"rdeč": "red", "rdeča": "red",
	"modr": "blue", "modra": "blue", "modri": "blue",
	"zelen": "green", "zelena": "green",
	"rumen": "yellow", "rumena": "yellow",
	"oranžn": "orange", "oranžna": "orange",
	"siv": "gray", "siva": "gray",
	"schwarz": "black", "weiß": "white", "weiss": "white",
	"rot": "red", "blau": "blue", "grün": "green", "gruen": "green",
	"gelb": "yellow", "grau": "gray",
	"black": "black", "white": "white", "red": "red",
	"blue": "blue", "green": "green", "yellow": "yellow",
	"orange": "orange", "silver": "silver", "gray": "gray", "grey": "gray",
}

// countryMap maps non-English country tokens to canonical English names.
var countryMap = map[string]string{
	"nemčija": "Germany", "nemcija": "Germany", "deutschland": "Germany",
	"kitajska": "China", "china": "China",
	"slovenija": "Slovenia", "slowenien": "Slovenia",
	"italija": "Italy", "italien": "Italy",
	"francija": "France", "frankreich": "France",
	"avstrija": "Austria", "österreich": "Austria", "oesterreich": "Austria",
	"švica": "Switzerland", "schweiz": "Switzerland",
	"japonska": "Japan", "tajvan": "Taiwan",
	"združene države": "United States", "zda": "United States", "usa": "United States",
	"vietnam": "Vietnam", "poljska": "Poland", "polen": "Poland",
	"češka": "Czech Republic", "tschechien": "Czech Republic",
}

// junkTokens are placeholder values that carry no information. Matched by
// exact case-insensitive comparison only, never substring.
var junkTokens = map[string]bool{
	"n/a": true, "na": true, "-": true, "--": true, "/": true,
	"unknown": true, "none": true, "null": true, "tbd": true, "?": true,
}

// IsJunk reports whether a string value is a known placeholder token.
func IsJunk(s string) bool {
	return junkTokens[strings.ToLower(strings.TrimSpace(s))]
}

// CanonicalColor maps a color token to its canonical English name.
// Returns the input unchanged when no mapping applies.
func CanonicalColor(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if mapped, ok := colorMap[key]; ok {
		return mapped
	}
	return strings.TrimSpace(s)
}

// ColorFromName infers a color from keyword occurrence in a product name.
// Returns the canonical color and the matched keyword, or "" when no
// keyword occurs.
func ColorFromName(name string) (color, keyword string) {
	lower := strings.ToLower(name)
	for kw, c := range colorMap {
		if strings.Contains(lower, kw) {
			return c, kw
		}
	}
	return "", ""
}

// CanonicalCountry normalizes a country-of-origin value: strips a
// "Made in" prefix, maps known non-English tokens to English.
func CanonicalCountry(s string) string {
	out := strings.TrimSpace(s)
	lower := strings.ToLower(out)
	for _, prefix := range []string{"made in ", "proizvedeno v ", "hergestellt in "} {
		if strings.HasPrefix(lower, prefix) {
			out = strings.TrimSpace(out[len(prefix):])
			lower = strings.ToLower(out)
			break
		}
	}
	if mapped, ok := countryMap[lower]; ok {
		return mapped
	}
	return out
}

// WeightReconcileConfig bounds the packaged-vs-net shortfall treated as a
// measurement artifact rather than a data conflict. The cutoffs are
// configurable judgment calls, not derived values.
type WeightReconcileConfig struct {
	MaxRelativeShortfall float64 // fraction of net weight, e.g. 0.05
	MaxAbsoluteShortfall float64 // kg, e.g. 0.1
}

// DefaultWeightReconcile matches the shipped thresholds: 5% or 0.1 kg.
func DefaultWeightReconcile() WeightReconcileConfig {
	return WeightReconcileConfig{MaxRelativeShortfall: 0.05, MaxAbsoluteShortfall: 0.1}
}

// ApplyCorrections runs every deterministic correction over an enriched
// product in place: junk-token nulling, color and country canonicalization,
// and the packaged-vs-net weight reconciliation. Larger weight shortfalls
// are left for the plausibility check to flag.
func ApplyCorrections(p *model.EnrichedProduct, cfg WeightReconcileConfig) {
	correctString(&p.Color, CanonicalColor)
	correctString(&p.CountryOfOrigin, CanonicalCountry)
	ReconcileWeights(&p.Dimensions, cfg)
}

func correctString(f *model.Field, canon func(string) string) {
	s := f.String()
	if s == "" {
		return
	}
	if IsJunk(s) {
		*f = model.NotFound()
		return
	}
	if mapped := canon(s); mapped != s {
		f.Value = mapped
	}
}

// ReconcileWeights lifts a slightly-short packaged weight up to the net
// weight. A package cannot weigh less than its contents, but small
// shortfalls within the configured bounds are measurement noise; the lifted
// value is downgraded to inferred and annotated.
func ReconcileWeights(d *model.ProductDimensions, cfg WeightReconcileConfig) {
	netW, okNet := d.Net.Weight.Float64()
	pkgW, okPkg := d.Packaged.Weight.Float64()
	if !okNet || !okPkg || !d.Net.Weight.IsSet() || !d.Packaged.Weight.IsSet() {
		return
	}
	if d.Net.Weight.Unit != d.Packaged.Weight.Unit {
		return
	}
	shortfall := netW - pkgW
	if shortfall <= 0 {
		return
	}
	if shortfall > cfg.MaxAbsoluteShortfall && shortfall > netW*cfg.MaxRelativeShortfall {
		return
	}

	note := fmt.Sprintf("Lifted from %v to match net weight %v", pkgW, netW)
	if d.Packaged.Weight.Notes != "" {
		note = d.Packaged.Weight.Notes + "; " + note
	}
	d.Packaged.Weight.Value = netW
	d.Packaged.Weight.Tier = model.TierInferred
	d.Packaged.Weight.Notes = note
}
