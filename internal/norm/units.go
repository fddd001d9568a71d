// Package norm converts heterogeneous units to a canonical set (length to
// cm, mass to kg, volume to L) and applies deterministic value corrections
// ahead of the LLM plausibility check. All functions are total: missing or
// malformed input passes through unchanged, never errors.
package norm

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Canonical unit names.
const (
	UnitCentimeter = "cm"
	UnitKilogram   = "kg"
	UnitLiter      = "L"
)

// lengthFactors maps length unit aliases to their cm factor.
var lengthFactors = map[string]float64{
	"mm": 0.1, "millimeter": 0.1, "millimeters": 0.1,
	"cm": 1.0, "centimeter": 1.0, "centimeters": 1.0,
	"m": 100.0, "meter": 100.0, "meters": 100.0,
	"in": 2.54, "inch": 2.54, "inches": 2.54, `"`: 2.54,
	"ft": 30.48, "foot": 30.48, "feet": 30.48,
}

// massFactors maps mass unit aliases to their kg factor.
var massFactors = map[string]float64{
	"g": 0.001, "gram": 0.001, "grams": 0.001,
	"kg": 1.0, "kilogram": 1.0, "kilograms": 1.0,
	"lb": 0.4536, "lbs": 0.4536, "pound": 0.4536, "pounds": 0.4536,
	"oz": 0.02835, "ounce": 0.02835, "ounces": 0.02835,
}

// volumeFactors maps volume unit aliases to their liter factor.
var volumeFactors = map[string]float64{
	"ml": 0.001, "milliliter": 0.001, "milliliters": 0.001,
	"cl": 0.01,
	"dl": 0.1,
	"l": 1.0, "liter": 1.0, "liters": 1.0, "litre": 1.0, "litres": 1.0,
	"gal": 3.785, "gallon": 3.785, "gallons": 3.785,
	"qt": 0.9464, "quart": 0.9464,
	"fl oz": 0.02957, "fl_oz": 0.02957, "fluid ounce": 0.02957,
}

// ToCentimeters converts a length value to centimeters, rounded to 2
// decimal places. Unknown units are treated as already canonical.
func ToCentimeters(value float64, unit string) float64 {
	return round2(value * factorFor(lengthFactors, unit))
}

// ToKilograms converts a mass value to kilograms, rounded to 3 decimal places.
func ToKilograms(value float64, unit string) float64 {
	return round3(value * factorFor(massFactors, unit))
}

// ToLiters converts a volume value to liters, rounded to 3 decimal places.
func ToLiters(value float64, unit string) float64 {
	return round3(value * factorFor(volumeFactors, unit))
}

func factorFor(table map[string]float64, unit string) float64 {
	if f, ok := table[strings.ToLower(strings.TrimSpace(unit))]; ok {
		return f
	}
	return 1.0
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// Kind selects a conversion target for NormalizeField.
type Kind string

const (
	KindLength Kind = "length"
	KindMass   Kind = "mass"
	KindVolume Kind = "volume"
)

// KindFor returns the conversion kind for a canonical dimension field name.
func KindFor(fieldName string) Kind {
	switch fieldName {
	case "weight":
		return KindMass
	case "volume":
		return KindVolume
	default:
		return KindLength
	}
}

// NormalizeField converts a field's numeric value to the canonical unit for
// its kind, recording the original value and unit in the notes. Fields
// without a numeric value or a unit are returned unchanged.
func NormalizeField(f model.Field, kind Kind) model.Field {
	value, ok := f.Float64()
	if !ok || f.Unit == "" {
		return f
	}

	var newValue float64
	var newUnit string
	switch kind {
	case KindMass:
		newValue = ToKilograms(value, f.Unit)
		newUnit = UnitKilogram
	case KindVolume:
		newValue = ToLiters(value, f.Unit)
		newUnit = UnitLiter
	default:
		newValue = ToCentimeters(value, f.Unit)
		newUnit = UnitCentimeter
	}

	// Already canonical: nothing to record, keeps normalization idempotent.
	if strings.EqualFold(strings.TrimSpace(f.Unit), newUnit) && newValue == value {
		return f
	}

	note := fmt.Sprintf("Normalized from %v %s", f.Value, f.Unit)
	out := f
	out.Value = newValue
	out.Unit = newUnit
	if out.Notes != "" {
		out.Notes += "; " + note
	} else {
		out.Notes = note
	}
	return out
}

// NormalizeDimensionSet normalizes every numeric field in a set in place.
func NormalizeDimensionSet(d *model.DimensionSet) {
	for name, f := range d.Fields() {
		*f = NormalizeField(*f, KindFor(name))
	}
}
