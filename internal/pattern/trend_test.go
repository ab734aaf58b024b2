package pattern

import "testing"

func TestTrendOf(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   Trend
	}{
		{"rising tail", []float64{10, 10, 10, 25, 30, 28}, TrendIncreasing},
		{"flat", []float64{10, 10, 10, 10, 10, 10}, TrendStable},
		{"falling tail", []float64{30, 28, 25, 10, 9, 8}, TrendDecreasing},
		{"two points rising", []float64{10, 13}, TrendIncreasing},
		{"two points falling", []float64{10, 5}, TrendDecreasing},
		{"two points flat", []float64{10, 11}, TrendStable},
		{"single point", []float64{42}, TrendInsufficientData},
		{"empty", nil, TrendInsufficientData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TrendOf(tc.values); got != tc.want {
				t.Errorf("TrendOf(%v) = %v, want %v", tc.values, got, tc.want)
			}
		})
	}
}

func TestRiskFor(t *testing.T) {
	cases := []struct {
		frequency float64
		want      Risk
	}{
		{0.6, RiskCritical},
		{0.5, RiskHigh},
		{0.3, RiskHigh},
		{0.2, RiskMedium},
		{0.15, RiskMedium},
		{0.1, RiskLow},
		{0.05, RiskLow},
		{0, RiskLow},
	}
	for _, tc := range cases {
		if got := RiskFor(tc.frequency); got != tc.want {
			t.Errorf("RiskFor(%v) = %v, want %v", tc.frequency, got, tc.want)
		}
	}
}
