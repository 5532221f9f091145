// Package roof analyzes roof photos with a vision model and estimates
// repair and replacement costs.
package roof

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Analysis types accepted by the analyzer.
const (
	TypeFull        = "full"
	TypeDamage      = "damage"
	TypeMeasurement = "measurement"
)

// MaxImageSize bounds uploaded images.
const MaxImageSize = 10 << 20

var (
	// ErrEmptyImage is returned when no image bytes were supplied.
	ErrEmptyImage = errors.New("image is required")
	// ErrUnsupportedImage is returned for non-image uploads.
	ErrUnsupportedImage = errors.New("unsupported image type")
	// ErrImageTooLarge is returned for images over MaxImageSize.
	ErrImageTooLarge = errors.New("image too large")
)

// Request is a single analysis request.
type Request struct {
	Image       []byte
	ContentType string
	Address     string
	Type        string
}

// Damage is one damaged area reported by the model.
type Damage struct {
	Type     string
	Severity string
	Location string
	AreaSqFt float64
}

// Confidence holds model self-reported confidence per dimension, 0..1.
type Confidence struct {
	AreaMeasurement        float64
	MaterialIdentification float64
	DamageAssessment       float64
}

// CostRange is a low/high estimate in dollars.
type CostRange struct {
	Low  decimal.Decimal
	High decimal.Decimal
}

// Analysis is the structured result of a roof analysis.
type Analysis struct {
	SquareFeet      float64
	Pitch           string
	Material        string
	Condition       string
	DamageAreas     []Damage
	Recommendations []string
	RemainingLife   int
	Confidence      Confidence
	RepairCost      CostRange
	ReplacementCost CostRange
	// Model is the model that produced the analysis.
	Model string
	// Fallback is set when the model answer could not be parsed and default
	// values were used instead.
	Fallback bool
}

// fallbackAnalysis is used when the model response has no parsable JSON.
func fallbackAnalysis() Analysis {
	return Analysis{
		SquareFeet:      1500,
		Pitch:           "unknown",
		Material:        "asphalt shingle",
		Condition:       "unknown",
		DamageAreas:     []Damage{},
		Recommendations: []string{"Manual inspection recommended"},
		RemainingLife:   10,
		Confidence: Confidence{
			AreaMeasurement:        0.3,
			MaterialIdentification: 0.5,
			DamageAssessment:       0.4,
		},
		Fallback: true,
	}
}

type materialCost struct {
	repair      decimal.Decimal
	replacement decimal.Decimal
}

// Per square foot costs.
var materialCosts = map[string]materialCost{
	"asphalt shingle": {decimal.RequireFromString("4.50"), decimal.RequireFromString("7.50")},
	"metal":           {decimal.RequireFromString("7.00"), decimal.RequireFromString("12.00")},
	"tile":            {decimal.RequireFromString("10.00"), decimal.RequireFromString("18.00")},
	"slate":           {decimal.RequireFromString("15.00"), decimal.RequireFromString("25.00")},
	"flat/tpo":        {decimal.RequireFromString("6.00"), decimal.RequireFromString("10.00")},
}

var conditionMultipliers = map[string]decimal.Decimal{
	"excellent": decimal.RequireFromString("0.5"),
	"good":      decimal.RequireFromString("0.7"),
	"fair":      decimal.NewFromInt(1),
	"poor":      decimal.RequireFromString("1.3"),
}

// marketMultipliers adjust estimates for known high-cost markets, matched as
// a substring of the lowercased address.
var marketMultipliers = map[string]decimal.Decimal{
	"denver": decimal.RequireFromString("1.15"),
}

// EstimateCosts fills the repair and replacement ranges of a from its area,
// material, condition and address. Values are rounded to the nearest $100.
func EstimateCosts(a *Analysis, address string) {
	base, ok := materialCosts[strings.ToLower(a.Material)]
	if !ok {
		base = materialCosts["asphalt shingle"]
	}
	cond, ok := conditionMultipliers[strings.ToLower(a.Condition)]
	if !ok {
		cond = decimal.NewFromInt(1)
	}
	market := decimal.NewFromInt(1)
	lower := strings.ToLower(address)
	for city, m := range marketMultipliers {
		if strings.Contains(lower, city) {
			market = m
		}
	}

	sqft := decimal.NewFromFloat(a.SquareFeet)
	repair := sqft.Mul(base.repair).Mul(cond).Mul(market)
	replacement := sqft.Mul(base.replacement).Mul(market)

	a.RepairCost = CostRange{
		Low:  repair.Mul(decimal.RequireFromString("0.8")).Round(-2),
		High: repair.Mul(decimal.RequireFromString("1.2")).Round(-2),
	}
	a.ReplacementCost = CostRange{
		Low:  replacement.Mul(decimal.RequireFromString("0.9")).Round(-2),
		High: replacement.Mul(decimal.RequireFromString("1.1")).Round(-2),
	}
}

// NormalizeType maps an empty or unknown analysis type to TypeFull.
func NormalizeType(t string) string {
	switch t {
	case TypeDamage, TypeMeasurement:
		return t
	default:
		return TypeFull
	}
}

const basePrompt = `Analyze this roof image and provide the following information in JSON format:
{
  "square_feet": estimated roof area in square feet,
  "pitch": roof pitch (e.g., "4/12", "6/12"),
  "material": roofing material type,
  "condition": overall condition ("excellent", "good", "fair", "poor"),
  "damage_areas": [
    {"type": "damage type", "severity": "minor/moderate/severe", "location": "description of location", "area_sqft": estimated affected area}
  ],
  "recommendations": ["list of recommended actions"],
  "remaining_life": estimated years of remaining life,
  "confidence_scores": {
    "area_measurement": 0.0-1.0,
    "material_identification": 0.0-1.0,
    "damage_assessment": 0.0-1.0
  }
}`

// Prompt builds the user prompt for an analysis type and optional address.
func Prompt(analysisType, address string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	switch NormalizeType(analysisType) {
	case TypeDamage:
		b.WriteString("\nFocus particularly on identifying damage, wear, and potential issues.")
	case TypeMeasurement:
		b.WriteString("\nFocus on accurate measurements and dimensions.")
	}
	if address != "" {
		b.WriteString("\nProperty address: ")
		b.WriteString(address)
		b.WriteString(". Consider local climate and building codes.")
	}
	return b.String()
}
