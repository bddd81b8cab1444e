// Package llm holds the pieces shared by the chat model providers: the JSON
// transport, the HTTP status error and the retry classification.
package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Provider   string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "llm status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Provider, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Provider, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

var (
	transient = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = resilience.ErrorClassification{RecordFailure: true}
)

// ClassifyError decides whether a provider call is worth repeating. Caller
// cancellation is neither retried nor counted against the breaker.
func ClassifyError(err error) resilience.ErrorClassification {
	var statusErr *HTTPStatusError
	var netErr net.Error

	switch {
	case err == nil, resilience.IsContextError(err):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return transient
	case errors.As(err, &statusErr):
		return ClassifyStatus(statusErr.StatusCode)
	case errors.As(err, &netErr):
		return transient
	default:
		return permanent
	}
}

// ClassifyStatus treats client errors as the caller's fault: not retried and
// not recorded, so a bad API key does not trip the breaker.
func ClassifyStatus(statusCode int) resilience.ErrorClassification {
	if IsRetryableHTTPStatus(statusCode) {
		return transient
	}
	return resilience.ErrorClassification{}
}

// WrapChatError marks every provider failure as ErrChatAdapter and, when the
// failure is transient, also as ErrTemporary.
func WrapChatError(operation string, err error, classifier resilience.ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if classifier == nil {
		classifier = ClassifyError
	}
	if domain.IsKind(err, domain.ErrChatAdapter) {
		return err
	}
	if !domain.IsKind(err, domain.ErrTemporary) && (classifier(err).Retryable || resilience.IsCircuitOpen(err)) {
		err = fmt.Errorf("%w: %w", domain.ErrTemporary, err)
	}
	return domain.WrapError(domain.ErrChatAdapter, operation, err)
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
