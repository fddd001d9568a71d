// Package pipeline implements the enrichment run for one product: triage,
// brand lookup, web search, per-page extraction, survivorship merging,
// gap-fill, and validation. Stages execute sequentially and short-circuit on
// the first hard failure.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// PickBest selects the surviving value for a field observed from multiple
// pages. Candidates with no value are discarded; the highest tier wins. When
// two or more candidates share the top tier, agreeing values are collapsed
// and annotated with the source count, while disagreeing values keep the
// first observation and annotate the full set of conflicting values.
func PickBest(candidates []model.Field) model.Field {
	var usable []model.Field
	for _, c := range candidates {
		if c.IsSet() {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return model.NotFound()
	}

	top := usable[0].Tier
	for _, c := range usable[1:] {
		if c.Tier.Rank() > top.Rank() {
			top = c.Tier
		}
	}

	var group []model.Field
	for _, c := range usable {
		if c.Tier == top {
			group = append(group, c)
		}
	}

	best := group[0]
	if len(group) < 2 {
		return best
	}

	agree := true
	firstKey := valueKey(group[0])
	for _, c := range group[1:] {
		if valueKey(c) != firstKey {
			agree = false
			break
		}
	}

	if agree {
		return annotate(best, fmt.Sprintf("Confirmed by %d sources", len(group)))
	}

	seen := make(map[string]bool, len(group))
	var values []string
	for _, c := range group {
		v := formatValue(c)
		if seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return annotate(best, "Sources disagree: "+strings.Join(values, ", "))
}

// valueKey builds the comparison key for cross-source agreement: the value
// and unit, case-folded and trimmed.
func valueKey(f model.Field) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", f.Value))) + "|" +
		strings.ToLower(strings.TrimSpace(f.Unit))
}

func formatValue(f model.Field) string {
	s := strings.TrimSpace(fmt.Sprintf("%v", f.Value))
	if f.Unit != "" {
		return s + " " + f.Unit
	}
	return s
}

func annotate(f model.Field, note string) model.Field {
	if f.Notes != "" {
		f.Notes += "; " + note
	} else {
		f.Notes = note
	}
	return f
}

// sortPagesByTier orders extracted pages manufacturer first, then authorized,
// then third-party, preserving processing order within a tier.
func sortPagesByTier(pages []extractedPage) []extractedPage {
	out := make([]extractedPage, len(pages))
	copy(out, pages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SourceTier.Rank() > out[j].SourceTier.Rank()
	})
	return out
}

// mergeExtractions folds every page's extraction output into the aggregate.
// Dimension fields, color, and country each merge independently through
// PickBest; specs dedup by name with the higher tier winning; warranty is
// taken wholesale from the first page in tier order that reports any
// warranty field. Returns the primary-image nominee from the structured
// pass, to be confirmed by the image filter.
func mergeExtractions(enriched *model.EnrichedProduct, pages []extractedPage) (imageNominee string) {
	ordered := sortPagesByTier(pages)

	netCands := make(map[string][]model.Field)
	pkgCands := make(map[string][]model.Field)
	var colorCands, countryCands, nomineeCands []model.Field

	for _, page := range ordered {
		tier := page.SourceTier.ConfidenceTier()
		if s := page.Structured; s != nil {
			collectDimensions(netCands, s.Net, page.URL, tier)
			collectDimensions(pkgCands, s.Packaged, page.URL, tier)
			if s.Color != nil && strings.TrimSpace(*s.Color) != "" {
				colorCands = append(colorCands, model.Field{
					Value: strings.TrimSpace(*s.Color), SourceURL: page.URL, Tier: tier,
				})
			}
			if s.CountryOfOrigin != nil && strings.TrimSpace(*s.CountryOfOrigin) != "" {
				countryCands = append(countryCands, model.Field{
					Value: strings.TrimSpace(*s.CountryOfOrigin), SourceURL: page.URL, Tier: tier,
				})
			}
			if s.PrimaryImageURL != nil && *s.PrimaryImageURL != "" {
				nomineeCands = append(nomineeCands, model.Field{
					Value: *s.PrimaryImageURL, SourceURL: page.URL, Tier: tier,
				})
			}
		}
		if c := page.Content; c != nil {
			enriched.Descriptions.AddFeatures(c.Features)
			for _, spec := range c.TechnicalSpecs {
				enriched.TechnicalData = enriched.TechnicalData.Upsert(model.TechnicalSpec{
					Name:      spec.Name,
					Value:     spec.Value,
					Unit:      spec.Unit,
					SourceURL: page.URL,
					Tier:      tier,
				})
			}
			if enriched.Warranty == nil && c.Warranty != nil && c.Warranty.reported() {
				enriched.Warranty = c.Warranty.toInfo(page.URL, tier)
			}
		}
	}

	for name, f := range enriched.Dimensions.Net.Fields() {
		if cands := netCands[name]; len(cands) > 0 {
			*f = PickBest(cands)
		}
	}
	for name, f := range enriched.Dimensions.Packaged.Fields() {
		if cands := pkgCands[name]; len(cands) > 0 {
			*f = PickBest(cands)
		}
	}
	if best := PickBest(colorCands); best.IsSet() {
		enriched.Color = best
	}
	if best := PickBest(countryCands); best.IsSet() {
		enriched.CountryOfOrigin = best
	}
	return PickBest(nomineeCands).String()
}

func collectDimensions(dst map[string][]model.Field, group dimensionGroup, url string, tier model.Tier) {
	for name, vu := range group.fields() {
		if vu == nil || vu.Value == nil {
			continue
		}
		dst[name] = append(dst[name], model.Field{
			Value:     *vu.Value,
			Unit:      vu.Unit,
			SourceURL: url,
			Tier:      tier,
		})
	}
}

// mergeDescriptions resolves the short and marketing descriptions from
// marker pairs against cached page content. Pages are consulted in tier
// order and the first non-trivial resolved span wins.
func mergeDescriptions(enriched *model.EnrichedProduct, pages []extractedPage, cached map[string]string) {
	ordered := sortPagesByTier(pages)

	resolve := func(pick func(*contentExtraction) *markerPair) model.Field {
		for _, page := range ordered {
			if page.Content == nil {
				continue
			}
			pair := pick(page.Content)
			if pair == nil || pair.StartMarker == "" {
				continue
			}
			content := cached[page.URL]
			if content == "" {
				continue
			}
			text := ResolveMarkers(content, pair.StartMarker, pair.EndMarker)
			if len(text) > 10 {
				return model.Field{
					Value:     text,
					SourceURL: page.URL,
					Tier:      page.SourceTier.ConfidenceTier(),
				}
			}
		}
		return model.NotFound()
	}

	if f := resolve(func(c *contentExtraction) *markerPair { return c.ShortDescription }); f.IsSet() {
		enriched.Descriptions.Short = f
	}
	if f := resolve(func(c *contentExtraction) *markerPair { return c.MarketingText }); f.IsSet() {
		enriched.Descriptions.Marketing = f
	}
}
