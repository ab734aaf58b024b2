// Package pattern derives trends, frequencies, and risk levels from the
// accumulated report and event history.
package pattern

// Trend classifies the direction of a time-ordered value series.
type Trend string

const (
	TrendIncreasing       Trend = "increasing"
	TrendDecreasing       Trend = "decreasing"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// Risk buckets an occurrence frequency, in occurrences per day.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// TrendOf classifies a chronologically ordered series by comparing the mean
// of the most recent three values against the mean of the earliest three.
// The trend is increasing above a 1.2x ratio and decreasing below 0.8x.
// Series shorter than three values compare last against first directly;
// fewer than two values cannot be classified.
func TrendOf(values []float64) Trend {
	if len(values) < 2 {
		return TrendInsufficientData
	}

	var recent, earliest float64
	if len(values) < 3 {
		recent = values[len(values)-1]
		earliest = values[0]
	} else {
		recent = mean(values[len(values)-3:])
		earliest = mean(values[:3])
	}

	switch {
	case recent > earliest*1.2:
		return TrendIncreasing
	case recent < earliest*0.8:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// RiskFor buckets a per-day occurrence frequency into a risk level.
func RiskFor(frequency float64) Risk {
	switch {
	case frequency > 0.5:
		return RiskCritical
	case frequency > 0.2:
		return RiskHigh
	case frequency > 0.1:
		return RiskMedium
	default:
		return RiskLow
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
