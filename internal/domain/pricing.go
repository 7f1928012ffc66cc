package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the assumed sell-side marketplace fee.
const DefaultFeeRate = 0.15

// marginEpsilon absorbs float error when the solved target price lands exactly
// on the configured threshold.
const marginEpsilon = 1e-6

// Estimate is the closed-form profitability estimate for one product.
type Estimate struct {
	TargetPrice float64
	Profit      float64
	MarginPct   float64
}

// EstimateMargin solves the target sell price that yields minMarginPct net of
// feeRate and derives profit and margin from it.
func EstimateMargin(sourcePrice, minMarginPct, feeRate float64) Estimate {
	if feeRate < 0 || feeRate >= 1 {
		feeRate = DefaultFeeRate
	}
	target := sourcePrice * (1 + minMarginPct/100) / (1 - feeRate)
	profit := target*(1-feeRate) - sourcePrice
	return Estimate{
		TargetPrice: target,
		Profit:      profit,
		MarginPct:   profit / sourcePrice * 100,
	}
}

// MeetsThreshold reports whether the estimate clears minMarginPct.
func (e Estimate) MeetsThreshold(minMarginPct float64) bool {
	return e.MarginPct+marginEpsilon >= minMarginPct
}

// Rounded returns the estimate rounded for storage: prices to cents, margin to
// hundredths of a percent.
func (e Estimate) Rounded() Estimate {
	return Estimate{
		TargetPrice: round(e.TargetPrice, 2),
		Profit:      round(e.Profit, 2),
		MarginPct:   round(e.MarginPct, 2),
	}
}

// ValidPrice reports a finite, strictly positive price.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
