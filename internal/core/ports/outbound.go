package ports

import (
	"context"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

// ImagePreprocessor decodes uploads and turns them into model input tensors.
type ImagePreprocessor interface {
	Decode(data []byte) (domain.RawImage, error)
	Preprocess(img domain.RawImage) (domain.Tensor, error)
}

// Classifier runs the loaded model. Predict is a pure function of its input.
type Classifier interface {
	Predict(tensor domain.Tensor) (domain.Prediction, error)
	Rank(pred domain.Prediction, k int) []domain.ClassScore
}

// TreatmentLookup resolves advisory text for a label, with a fixed fallback.
type TreatmentLookup interface {
	Lookup(label domain.Label) string
}

// ChatModel forwards an ordered transcript to a hosted conversational model
// and returns the assistant reply.
type ChatModel interface {
	Name() string
	Complete(ctx context.Context, turns []domain.ChatTurn) (string, error)
}

// DiagnosisEventPublisher announces finished diagnoses to other services.
type DiagnosisEventPublisher interface {
	PublishDiagnosis(ctx context.Context, event domain.DiagnosisEvent) error
}

type DiagnosisObserver interface {
	ObserveDiagnosis(outcome string, label domain.Label, confidence float32, duration time.Duration)
}

type ChatObserver interface {
	ObserveChat(provider, status string, duration time.Duration)
}
