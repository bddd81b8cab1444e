package domain

import "time"

// Prediction is the interpreted classifier output. Confidence is the arg-max
// probability as returned by the model, never re-normalized.
type Prediction struct {
	Index         int
	Label         Label
	Confidence    float32
	Probabilities []float32
}

type ClassScore struct {
	Label      Label   `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Diagnosis is the structured result behind the diagnosis display string.
type Diagnosis struct {
	Label         Label        `json:"label"`
	DisplayLabel  string       `json:"display_label"`
	Confidence    float32      `json:"confidence"`
	ConfidencePct string       `json:"confidence_pct"`
	Treatment     string       `json:"treatment"`
	Alternatives  []ClassScore `json:"alternatives,omitempty"`
	Display       string       `json:"display"`
}

// DiagnosisEvent is emitted after every finished diagnosis.
type DiagnosisEvent struct {
	ID         string    `json:"id"`
	Label      Label     `json:"label,omitempty"`
	Confidence float32   `json:"confidence,omitempty"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
