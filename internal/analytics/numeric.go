package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func meanOf(values []float64) (decimal.Decimal, bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))), true
}

// roundHalfUp rounds a non-negative value to the nearest integer, halves up.
func roundHalfUp(d decimal.Decimal) int {
	return int(d.Round(0).IntPart())
}

func mean(values []float64) float64 {
	m, _ := meanOf(values)
	return m.InexactFloat64()
}

// roundedMean is 0 for an empty slice.
func roundedMean(values []float64) int {
	m, ok := meanOf(values)
	if !ok {
		return 0
	}
	return roundHalfUp(m)
}

// percent is part/whole*100 rounded; a zero whole yields 0.
func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	ratio := decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole)))
	return roundHalfUp(ratio)
}

func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func minMax(values []float64) (lo, hi float64) {
	for i, v := range values {
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi
}
