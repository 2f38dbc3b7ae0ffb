package model

// RiskCategory is a coarse risk bucket, ordered from MINIMAL to CRITICAL
type RiskCategory int

const (
	RiskMinimal RiskCategory = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// RiskCategories lists every category in ascending severity
var RiskCategories = []RiskCategory{RiskMinimal, RiskLow, RiskMedium, RiskHigh, RiskCritical}

func (c RiskCategory) String() string {
	switch c {
	case RiskMinimal:
		return "MINIMAL"
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the category by name so it can key JSON maps
func (c RiskCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// RiskBreakdown is a fuzzy membership distribution over risk categories
type RiskBreakdown struct {
	Categories map[RiskCategory]float64 `json:"categories"`
}

// Sum returns the total membership (≈1 for a valid breakdown)
func (b RiskBreakdown) Sum() float64 {
	total := 0.0
	for _, v := range b.Categories {
		total += v
	}
	return total
}

// Dominant returns the category with the largest membership.
// Ties resolve to the more severe category.
func (b RiskBreakdown) Dominant() RiskCategory {
	best := RiskMinimal
	bestVal := -1.0
	for _, c := range RiskCategories {
		if v := b.Categories[c]; v >= bestVal {
			best = c
			bestVal = v
		}
	}
	return best
}

// Membership returns the membership of one category
func (b RiskBreakdown) Membership(c RiskCategory) float64 {
	return b.Categories[c]
}
