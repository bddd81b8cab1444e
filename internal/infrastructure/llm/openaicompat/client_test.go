package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/resilience"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Options{}, nil); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}

func TestNewAppliesProviderDefaults(t *testing.T) {
	client, err := New(Options{APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.Name() != "groq" || client.opts.Model != GroqDefaultModel || client.transport.BaseURL != GroqBaseURL {
		t.Fatalf("unexpected groq defaults: %s %+v", client.Name(), client.opts)
	}

	client, err = New(Options{Provider: "openai", APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.opts.Model != OpenAIDefaultModel || client.transport.BaseURL != OpenAIBaseURL {
		t.Fatalf("unexpected openai defaults: %+v", client.opts)
	}
}

func TestCompletePostsChatCompletion(t *testing.T) {
	var captured completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Use a copper fungicide."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL + "/", APIKey: "secret", Model: "m"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reply, err := client.Complete(context.Background(), []domain.ChatTurn{
		{Role: domain.RoleSystem, Text: "sys"},
		{Role: domain.RoleUser, Text: "Blight on potatoes?"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "Use a copper fungicide." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if captured.Model != "m" || len(captured.Messages) != 2 || captured.Messages[1].Role != "user" {
		t.Fatalf("unexpected request: %+v", captured)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	}, nil)
	client, err := New(Options{BaseURL: server.URL, APIKey: "k"}, exec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reply, err := client.Complete(context.Background(), []domain.ChatTurn{{Role: domain.RoleUser, Text: "hi"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "ok" || calls.Load() != 2 {
		t.Fatalf("expected success on second call, reply=%q calls=%d", reply, calls.Load())
	}
}

func TestCompleteReportsChatAdapterErrorOnRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid API Key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL, APIKey: "bad"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.Complete(context.Background(), []domain.ChatTurn{{Role: domain.RoleUser, Text: "hi"}})
	if !domain.IsKind(err, domain.ErrChatAdapter) {
		t.Fatalf("expected chat adapter error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("401 must not be temporary: %v", err)
	}
}
