package core

// SlotResolution is the ephemeral outcome of resolving free text against a
// stage's closed choice set. Value is empty when resolution failed. Rationale
// is shown to the user only when the value is empty or confidence is below
// the accept threshold.
type SlotResolution struct {
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Resolved reports whether the resolution carries a candidate value.
func (r SlotResolution) Resolved() bool { return r.Value != "" }

// Classification is the ephemeral outcome of the secondary deviation
// classifier: whether an utterance that failed slot resolution is a genuine
// deviation (question, visualization request, navigation command) rather
// than a poorly phrased selection attempt.
type Classification struct {
	Deviation  bool    `json:"deviation"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category,omitempty"` // "question", "visualization", "navigation", "selection"
}
