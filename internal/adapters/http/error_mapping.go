package httpadapter

import (
	"net/http"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

// mapErrorToHTTPStatus blames the client only for what it sent. A shape
// mismatch means the model and its configuration disagree, which is ours.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrDecode):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrChatAdapter):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
