package score

import (
	"math"

	"github.com/ppiankov/threatfuse/internal/model"
)

// categoryCentres are the points on the [0,1] aggregate where each category peaks
var categoryCentres = map[model.RiskCategory]float64{
	model.RiskMinimal:  0.00,
	model.RiskLow:      0.25,
	model.RiskMedium:   0.50,
	model.RiskHigh:     0.75,
	model.RiskCritical: 1.00,
}

// categorySigma is the width of each Gaussian membership curve
const categorySigma = 0.1

// Categorize computes normalised Gaussian memberships of x over the five risk categories
func Categorize(x float64) model.RiskBreakdown {
	x = clamp(x, 0, 1)

	raw := make(map[model.RiskCategory]float64, len(categoryCentres))
	total := 0.0
	for _, c := range model.RiskCategories {
		d := x - categoryCentres[c]
		m := math.Exp(-(d * d) / (2 * categorySigma * categorySigma))
		raw[c] = m
		total += m
	}

	// x always lies within 0.125 of some centre, so total never underflows
	for c := range raw {
		raw[c] /= total
	}
	return model.RiskBreakdown{Categories: raw}
}
