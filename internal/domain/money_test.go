package domain

import (
	"testing"
	"time"
)

func TestAmountFromSom_BankersRounding(t *testing.T) {
	tests := []struct {
		som  float64
		want Amount
	}{
		{0, 0},
		{1, 100},
		{18.5, 1850},
		{0.125, 12},  // half to even: 12.5 hundredths rounds down
		{0.375, 38},  // half to even: 37.5 hundredths rounds up
		{-18.5, -1850},
	}

	for _, tt := range tests {
		if got := AmountFromSom(tt.som); got != tt.want {
			t.Errorf("AmountFromSom(%v) = %d, want %d", tt.som, got, tt.want)
		}
	}
}

func TestAmount_SomRoundTrip(t *testing.T) {
	a := AmountFromSom(123.45)
	if a.Som() != 123.45 {
		t.Errorf("expected 123.45, got %v", a.Som())
	}
}

func TestMulRate(t *testing.T) {
	// 12.5 kWh at 18.5 som/kWh = 231.25 som
	if got := MulRate(12.5, 18.5); got != 23125 {
		t.Errorf("expected 23125 hundredths, got %d", got)
	}
}

func TestAmount_Scale(t *testing.T) {
	a := AmountFromSom(100)
	if got := a.Scale(0.8); got != AmountFromSom(80) {
		t.Errorf("expected 80 som, got %v", got.Som())
	}
	// Half to even at the hundredth boundary.
	if got := Amount(25).Scale(0.5); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}

func TestMinAmount(t *testing.T) {
	if got := MinAmount(AmountFromSom(10), AmountFromSom(20)); got != AmountFromSom(10) {
		t.Errorf("expected 10 som, got %v", got.Som())
	}
}

func TestAmount_String(t *testing.T) {
	if got := AmountFromSom(231.25).String(); got != "231.25 KGS" {
		t.Errorf("unexpected format: %q", got)
	}
}

func TestTariffSnapshot_EstimatedCost(t *testing.T) {
	snapshot := &TariffSnapshot{
		RatePerKwh:    18.5,
		SessionFee:    10,
		RatePerMinute: 0.5,
	}

	// 10 kWh over 30 min: 185 + 10 + 15 = 210 som
	got := snapshot.EstimatedCost(10, 30*time.Minute)
	if got != AmountFromSom(210) {
		t.Errorf("expected 210 som, got %v", got.Som())
	}
}

func TestTariffSnapshot_CostForClampsNegativeEnergy(t *testing.T) {
	snapshot := &TariffSnapshot{RatePerKwh: 18.5, SessionFee: 10}

	got := snapshot.CostFor(-3, 0)
	if got != AmountFromSom(10) {
		t.Errorf("expected session fee only, got %v", got.Som())
	}
}
