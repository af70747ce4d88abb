package models

import "math"

// Tier is a purchase quantity bracket in gallons.
type Tier string

const (
	Tier100 Tier = "100"
	Tier150 Tier = "150"
	Tier200 Tier = "200"
)

// Tiers lists the brackets from the smallest to the largest quantity.
var Tiers = []Tier{Tier100, Tier150, Tier200}

// Prices holds the per-gallon price for each quantity tier.
type Prices struct {
	OneHundred float64 `json:"oneHundred" yaml:"oneHundred"`
	OneFifty   float64 `json:"oneFifty" yaml:"oneFifty"`
	TwoHundred float64 `json:"twoHundred" yaml:"twoHundred"`
}

// UniformPrices applies one value to every tier.
func UniformPrices(v float64) Prices {
	return Prices{OneHundred: v, OneFifty: v, TwoHundred: v}
}

// Get returns the price of a tier.
func (p Prices) Get(t Tier) float64 {
	switch t {
	case Tier100:
		return p.OneHundred
	case Tier150:
		return p.OneFifty
	case Tier200:
		return p.TwoHundred
	default:
		return math.NaN()
	}
}

// MissingTier returns the first tier whose price is not a number.
func (p Prices) MissingTier() (Tier, bool) {
	for _, t := range Tiers {
		if math.IsNaN(p.Get(t)) {
			return t, true
		}
	}
	return "", false
}
