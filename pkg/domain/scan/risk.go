package scan

// Severity weights for the risk score. Front-loaded on purpose: one
// critical finding moves the score far more than many lows.
const (
	weightCritical = 25
	weightHigh     = 10
	weightMedium   = 3
	weightLow      = 1
)

// WeightedTotal returns the raw weighted finding total before clamping.
// Grade bands are derived from this value, not from the clamped score, so
// ordering is preserved at the extremes.
func WeightedTotal(critical, high, medium, low int) int {
	return weightCritical*critical + weightHigh*high + weightMedium*medium + weightLow*low
}

// Score converts severity counts into a 0-100 risk score. Zero findings is
// 100 unconditionally rather than falling through the formula.
func Score(critical, high, medium, low int) int {
	if critical == 0 && high == 0 && medium == 0 && low == 0 {
		return 100
	}
	score := 100 - 2*WeightedTotal(critical, high, medium, low)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// GradeFor maps a weighted total to a letter grade.
func GradeFor(weighted int) string {
	switch {
	case weighted < 20:
		return "A"
	case weighted < 40:
		return "B"
	case weighted < 60:
		return "C"
	case weighted < 80:
		return "D"
	default:
		return "F"
	}
}

// Grade returns the letter grade for the given severity counts.
func GradeForCounts(critical, high, medium, low int) string {
	return GradeFor(WeightedTotal(critical, high, medium, low))
}

// TrendDirection classifies score movement between two scans.
type TrendDirection string

const (
	TrendImproved  TrendDirection = "improved"
	TrendDeclined  TrendDirection = "declined"
	TrendUnchanged TrendDirection = "unchanged"
	TrendInitial   TrendDirection = "initial"
)

// Trend classifies the signed delta between the current score and the
// previous one. A nil previous score means this is the first scan.
func Trend(current int, previous *int) TrendDirection {
	if previous == nil {
		return TrendInitial
	}
	switch {
	case current > *previous:
		return TrendImproved
	case current < *previous:
		return TrendDeclined
	default:
		return TrendUnchanged
	}
}
