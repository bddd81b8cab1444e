package usecase

import (
	"fmt"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

const (
	EmptyInputMessage = "⚠️ Please upload an image for diagnosis."

	diagnosisErrorPrefix = "❌ Error during diagnosis: "
	chatErrorPrefix      = "⚠️ Chat service error: "
)

// FormatConfidence renders a probability as a percentage with one decimal.
func FormatConfidence(confidence float32) string {
	return fmt.Sprintf("%.1f", float64(confidence)*100)
}

// FormatDiagnosis renders label, confidence and treatment in display order.
func FormatDiagnosis(label domain.Label, confidence float32, treatment string) string {
	return fmt.Sprintf(
		"### 🌿 Diagnosis: %s\n**Confidence:** %s%%\n\n### 🛠 Recommended Treatment:\n%s",
		label.DisplayName(),
		FormatConfidence(confidence),
		treatment,
	)
}

func FormatDiagnosisError(err error) string {
	return diagnosisErrorPrefix + err.Error()
}

func FormatChatError(err error) string {
	return chatErrorPrefix + err.Error()
}
