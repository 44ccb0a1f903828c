package types

// QualityMetrics scores a single AI response against the prior responses in
// the same task. All four component scores are integers in [0, 10]. Always
// derived from message history, never stored as source of truth.
type QualityMetrics struct {
	// Repetitiveness: higher means MORE original (less word overlap with
	// prior responses).
	Repetitiveness int `json:"repetitiveness"`

	// Collaboration counts explicit engagement with prior speakers.
	Collaboration int `json:"collaboration"`

	// Synthesis counts conclusion phrasing and quotation of prior responses.
	Synthesis int `json:"synthesis"`

	// Originality rewards substance: length and concrete, actionable detail.
	Originality int `json:"originality"`

	// OverallQuality is the weighted combination:
	// 0.3*Repetitiveness + 0.3*Collaboration + 0.2*Synthesis + 0.2*Originality.
	OverallQuality int `json:"overall_quality"`
}

// NeutralQuality is the advisory fallback used when assessment degrades
// (e.g. malformed prior content). Scoring failures never abort a run.
func NeutralQuality() QualityMetrics {
	return QualityMetrics{
		Repetitiveness: 5,
		Collaboration:  5,
		Synthesis:      5,
		Originality:    5,
		OverallQuality: 5,
	}
}
