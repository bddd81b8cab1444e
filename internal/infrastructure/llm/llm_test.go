package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

func TestPostJSONReturnsStatusErrorWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Fatalf("expected auth header to be forwarded")
		}
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := &JSONTransport{
		Provider: "groq",
		BaseURL:  srv.URL,
		Header:   http.Header{"Authorization": []string{"Bearer k"}},
	}
	var out map[string]any
	err := tr.PostJSON(context.Background(), "/chat/completions", map[string]string{"a": "b"}, &out, "chat")

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", statusErr.StatusCode)
	}
	if !ClassifyError(err).Retryable {
		t.Fatalf("429 must be retryable")
	}
}

func TestClassifyErrorDoesNotRetryClientErrorsOrCancellation(t *testing.T) {
	if ClassifyError(&HTTPStatusError{StatusCode: http.StatusUnauthorized}).Retryable {
		t.Fatalf("401 must not be retried")
	}
	class := ClassifyError(context.Canceled)
	if class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must neither retry nor trip the breaker: %+v", class)
	}
}

func TestWrapChatErrorTagsKinds(t *testing.T) {
	err := WrapChatError("groq.complete", &HTTPStatusError{StatusCode: http.StatusBadGateway}, nil)
	if !domain.IsKind(err, domain.ErrChatAdapter) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected chat adapter + temporary kinds, got %v", err)
	}

	err = WrapChatError("groq.complete", &HTTPStatusError{StatusCode: http.StatusBadRequest}, nil)
	if !domain.IsKind(err, domain.ErrChatAdapter) {
		t.Fatalf("expected chat adapter kind, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary")
	}
}
