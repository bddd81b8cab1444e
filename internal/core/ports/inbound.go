package ports

import (
	"context"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

// DiagnosisService is the inbound contract for leaf image diagnosis.
// Diagnose* variants always return display text and never fail; Run*
// variants return the structured result with typed errors.
type DiagnosisService interface {
	Diagnose(ctx context.Context, img *domain.RawImage) string
	DiagnoseBytes(ctx context.Context, data []byte) string
	Run(ctx context.Context, img *domain.RawImage) (*domain.Diagnosis, error)
	RunBytes(ctx context.Context, data []byte) (*domain.Diagnosis, error)
}

// ChatService is the inbound contract for the agronomist chatbot. The
// transcript is owned by the caller and returned extended by one user and
// one assistant turn, together with the cleared input text.
type ChatService interface {
	Reply(ctx context.Context, userText string, history []domain.ChatTurn) ([]domain.ChatTurn, string)
	Clear() ([]domain.ChatTurn, string)
}
