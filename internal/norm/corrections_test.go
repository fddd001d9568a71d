package norm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestIsJunk(t *testing.T) {
	assert.True(t, IsJunk("n/a"))
	assert.True(t, IsJunk("N/A"))
	assert.True(t, IsJunk(" - "))
	assert.True(t, IsJunk("Unknown"))
	assert.False(t, IsJunk("navy")) // exact match only, never substring
	assert.False(t, IsJunk("Germany"))
	assert.False(t, IsJunk(""))
}

func TestCanonicalColor(t *testing.T) {
	assert.Equal(t, "black", CanonicalColor("črna"))
	assert.Equal(t, "white", CanonicalColor("Bela"))
	assert.Equal(t, "gray", CanonicalColor("grey"))
	assert.Equal(t, "green", CanonicalColor("grün"))
	assert.Equal(t, "teal", CanonicalColor("teal"), "unmapped passes through")
}

func TestColorFromName(t *testing.T) {
	color, keyword := ColorFromName("Akumulatorski vijačnik, modra")
	assert.Equal(t, "blue", color)
	assert.Equal(t, "modr", keyword[:4])

	color, _ = ColorFromName("Cordless drill")
	assert.Empty(t, color)
}

func TestCanonicalCountry(t *testing.T) {
	assert.Equal(t, "Germany", CanonicalCountry("Made in Germany"))
	assert.Equal(t, "Germany", CanonicalCountry("Nemčija"))
	assert.Equal(t, "China", CanonicalCountry("made in China"))
	assert.Equal(t, "Slovenia", CanonicalCountry("slovenija"))
	assert.Equal(t, "Narnia", CanonicalCountry("Narnia"), "unmapped passes through")
}

func TestApplyCorrections_JunkNulled(t *testing.T) {
	p := model.NewEnrichedProduct()
	p.Color = model.Field{Value: "n/a", Tier: model.TierThirdParty}
	p.CountryOfOrigin = model.Field{Value: "-", Tier: model.TierThirdParty}

	ApplyCorrections(p, DefaultWeightReconcile())

	assert.False(t, p.Color.IsSet())
	assert.Equal(t, model.TierNotFound, p.Color.Tier)
	assert.False(t, p.CountryOfOrigin.IsSet())
}

func TestApplyCorrections_LocaleMapped(t *testing.T) {
	p := model.NewEnrichedProduct()
	p.Color = model.Field{Value: "črna", Tier: model.TierOfficial}
	p.CountryOfOrigin = model.Field{Value: "Made in Nemčija", Tier: model.TierAuthorized}

	ApplyCorrections(p, DefaultWeightReconcile())

	assert.Equal(t, "black", p.Color.Value)
	assert.Equal(t, model.TierOfficial, p.Color.Tier, "tier untouched by mapping")
	assert.Equal(t, "Germany", p.CountryOfOrigin.Value)
}

func TestReconcileWeights_SmallShortfallLifted(t *testing.T) {
	d := model.ProductDimensions{Net: model.EmptyDimensionSet(), Packaged: model.EmptyDimensionSet()}
	d.Net.Weight = model.Field{Value: 1.0, Unit: "kg", Tier: model.TierOfficial}
	d.Packaged.Weight = model.Field{Value: 0.95, Unit: "kg", Tier: model.TierThirdParty}

	ReconcileWeights(&d, DefaultWeightReconcile())

	assert.Equal(t, 1.0, d.Packaged.Weight.Value)
	assert.Equal(t, model.TierInferred, d.Packaged.Weight.Tier)
	assert.Contains(t, d.Packaged.Weight.Notes, "Lifted from 0.95")
	// net side untouched
	assert.Equal(t, 1.0, d.Net.Weight.Value)
	assert.Equal(t, model.TierOfficial, d.Net.Weight.Tier)
}

func TestReconcileWeights_LargeShortfallLeftAlone(t *testing.T) {
	d := model.ProductDimensions{Net: model.EmptyDimensionSet(), Packaged: model.EmptyDimensionSet()}
	d.Net.Weight = model.Field{Value: 10.0, Unit: "kg", Tier: model.TierOfficial}
	d.Packaged.Weight = model.Field{Value: 8.0, Unit: "kg", Tier: model.TierThirdParty}

	ReconcileWeights(&d, DefaultWeightReconcile())

	assert.Equal(t, 8.0, d.Packaged.Weight.Value, "left for the plausibility check")
	assert.Equal(t, model.TierThirdParty, d.Packaged.Weight.Tier)
}

func TestReconcileWeights_PackagedHeavierUntouched(t *testing.T) {
	d := model.ProductDimensions{Net: model.EmptyDimensionSet(), Packaged: model.EmptyDimensionSet()}
	d.Net.Weight = model.Field{Value: 1.0, Unit: "kg", Tier: model.TierOfficial}
	d.Packaged.Weight = model.Field{Value: 1.2, Unit: "kg", Tier: model.TierOfficial}

	ReconcileWeights(&d, DefaultWeightReconcile())
	assert.Equal(t, 1.2, d.Packaged.Weight.Value)
}

func TestReconcileWeights_UnitMismatchSkipped(t *testing.T) {
	d := model.ProductDimensions{Net: model.EmptyDimensionSet(), Packaged: model.EmptyDimensionSet()}
	d.Net.Weight = model.Field{Value: 1.0, Unit: "kg", Tier: model.TierOfficial}
	d.Packaged.Weight = model.Field{Value: 950.0, Unit: "g", Tier: model.TierThirdParty}

	ReconcileWeights(&d, DefaultWeightReconcile())
	assert.Equal(t, 950.0, d.Packaged.Weight.Value)
}

func TestReconcileWeights_MissingSideSkipped(t *testing.T) {
	d := model.ProductDimensions{Net: model.EmptyDimensionSet(), Packaged: model.EmptyDimensionSet()}
	d.Packaged.Weight = model.Field{Value: 0.95, Unit: "kg", Tier: model.TierThirdParty}

	require.NotPanics(t, func() { ReconcileWeights(&d, DefaultWeightReconcile()) })
	assert.Equal(t, 0.95, d.Packaged.Weight.Value)
}

func TestReconcileWeights_AbsoluteFloorAppliesToHeavyItems(t *testing.T) {
	// 0.08 kg shortfall on a 40 kg item is 0.2%, far under the absolute floor
	d := model.ProductDimensions{Net: model.EmptyDimensionSet(), Packaged: model.EmptyDimensionSet()}
	d.Net.Weight = model.Field{Value: 40.0, Unit: "kg", Tier: model.TierOfficial}
	d.Packaged.Weight = model.Field{Value: 39.92, Unit: "kg", Tier: model.TierThirdParty}

	ReconcileWeights(&d, DefaultWeightReconcile())
	assert.Equal(t, 40.0, d.Packaged.Weight.Value)
	assert.Equal(t, model.TierInferred, d.Packaged.Weight.Tier)
}
