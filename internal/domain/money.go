package domain

import (
	"fmt"
	"math"
)

// Amount is a monetary value in hundredths of a som (KGS).
// Balances and settlement math stay in integer arithmetic; floats
// appear only at the HTTP edge and in tariff rates.
type Amount int64

const Currency = "KGS"

// AmountFromSom converts a som value to an Amount with banker's rounding.
func AmountFromSom(v float64) Amount {
	return Amount(math.RoundToEven(v * 100))
}

// Som returns the value in soms as a float for serialization.
func (a Amount) Som() float64 {
	return float64(a) / 100
}

// MulRate multiplies a quantity (e.g. kWh or minutes) by a per-unit rate
// in soms and returns the rounded Amount.
func MulRate(quantity, rate float64) Amount {
	return AmountFromSom(quantity * rate)
}

// Scale multiplies the amount by a factor with banker's rounding.
func (a Amount) Scale(f float64) Amount {
	return Amount(math.RoundToEven(float64(a) * f))
}

func (a Amount) String() string {
	return fmt.Sprintf("%.2f %s", a.Som(), Currency)
}

func MinAmount(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}
