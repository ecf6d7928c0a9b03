package gatekeeper

// Band is the categorical quality grade (spec.md §3.1, GLOSSARY).
type Band string

const (
	BandA Band = "A"
	BandB Band = "B"
	BandC Band = "C"
	BandD Band = "D"
)

// bandThresholds are the score cutoffs for A/B/C; anything below C's
// floor, or a nil score, is D.
const (
	bandAThreshold = 85
	bandBThreshold = 70
	bandCThreshold = 50
)

// DeriveBand computes band and its reason purely from score
// (spec.md §3.2 invariant 5: "band derivation is pure ... must not
// depend on verdict"). A nil score (NOT_EVALUATED symbols) is always D
// — this resolves spec.md §9 Open Question 3.
func DeriveBand(score *int) (Band, string) {
	if score == nil {
		return BandD, "no score: not evaluated"
	}
	s := *score
	switch {
	case s >= bandAThreshold:
		return BandA, "score >= 85"
	case s >= bandBThreshold:
		return BandB, "score >= 70"
	case s >= bandCThreshold:
		return BandC, "score >= 50"
	default:
		return BandD, "score < 50"
	}
}
