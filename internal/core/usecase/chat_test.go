package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
)

type chatModelFake struct {
	reply string
	err   error
	calls int
	turns []domain.ChatTurn
}

func (f *chatModelFake) Name() string { return "fake" }

func (f *chatModelFake) Complete(_ context.Context, turns []domain.ChatTurn) (string, error) {
	f.calls++
	f.turns = append([]domain.ChatTurn(nil), turns...)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type chatObserverFake struct {
	statuses []string
}

func (f *chatObserverFake) ObserveChat(_ string, status string, _ time.Duration) {
	f.statuses = append(f.statuses, status)
}

func TestReplyBlankInputSkipsModel(t *testing.T) {
	model := &chatModelFake{reply: "unused"}
	uc := NewChatUseCase(model, ChatOptions{})
	history := []domain.ChatTurn{{Role: domain.RoleUser, Text: "hi"}, {Role: domain.RoleAssistant, Text: "hello"}}

	updated, cleared := uc.Reply(context.Background(), "   ", history)
	if model.calls != 0 {
		t.Fatalf("model must not be called for blank input")
	}
	if cleared != "" || len(updated) != 2 {
		t.Fatalf("expected unchanged history, got %+v %q", updated, cleared)
	}
}

func TestReplyAppendsExactlyOnePair(t *testing.T) {
	model := &chatModelFake{reply: "Spray neem oil weekly."}
	uc := NewChatUseCase(model, ChatOptions{})
	history := []domain.ChatTurn{{Role: domain.RoleUser, Text: "hi"}, {Role: domain.RoleAssistant, Text: "hello"}}

	updated, cleared := uc.Reply(context.Background(), "Aphids on roses?", history)
	if cleared != "" {
		t.Fatalf("expected cleared input, got %q", cleared)
	}
	if len(updated) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(updated))
	}
	if updated[2] != (domain.ChatTurn{Role: domain.RoleUser, Text: "Aphids on roses?"}) {
		t.Fatalf("unexpected user turn: %+v", updated[2])
	}
	if updated[3] != (domain.ChatTurn{Role: domain.RoleAssistant, Text: "Spray neem oil weekly."}) {
		t.Fatalf("unexpected assistant turn: %+v", updated[3])
	}
	if len(history) != 2 {
		t.Fatalf("caller history must not be mutated")
	}

	if model.turns[0].Role != domain.RoleSystem || !strings.Contains(model.turns[0].Text, "agronomist") {
		t.Fatalf("expected agronomist instruction first, got %+v", model.turns[0])
	}
	if last := model.turns[len(model.turns)-1]; last.Text != "Aphids on roses?" {
		t.Fatalf("expected user message last, got %+v", last)
	}
}

func TestReplyRendersModelFailureInline(t *testing.T) {
	observer := &chatObserverFake{}
	model := &chatModelFake{err: errors.New("groq chat_completions status: 503 Service Unavailable")}
	uc := NewChatUseCase(model, ChatOptions{Observer: observer})

	updated, cleared := uc.Reply(context.Background(), "Is my basil dying?", nil)
	if cleared != "" || len(updated) != 2 {
		t.Fatalf("expected one pair, got %+v", updated)
	}
	got := updated[1]
	if got.Role != domain.RoleAssistant || !strings.HasPrefix(got.Text, "⚠️ Chat service error: ") {
		t.Fatalf("unexpected error turn: %+v", got)
	}
	if !strings.Contains(got.Text, "503") {
		t.Fatalf("expected cause in error turn: %q", got.Text)
	}
	if len(observer.statuses) != 1 || observer.statuses[0] != "error" {
		t.Fatalf("expected error status observed, got %v", observer.statuses)
	}
}

func TestReplyWithoutModelIsChatError(t *testing.T) {
	uc := NewChatUseCase(nil, ChatOptions{})
	updated, _ := uc.Reply(context.Background(), "hello", nil)
	if len(updated) != 2 || !strings.Contains(updated[1].Text, "no chat model configured") {
		t.Fatalf("unexpected transcript: %+v", updated)
	}
}

func TestReplyTrimsContextWindow(t *testing.T) {
	model := &chatModelFake{reply: "ok"}
	uc := NewChatUseCase(model, ChatOptions{ContextTurns: 4})

	var history []domain.ChatTurn
	for i := 0; i < 5; i++ {
		history = append(history,
			domain.ChatTurn{Role: domain.RoleUser, Text: "q"},
			domain.ChatTurn{Role: domain.RoleAssistant, Text: "a"},
		)
	}
	updated, _ := uc.Reply(context.Background(), "latest", history)
	if len(updated) != 12 {
		t.Fatalf("full transcript must be kept for the caller, got %d", len(updated))
	}
	// The 4-turn window opens with an assistant turn, which is dropped.
	if len(model.turns) != 4 {
		t.Fatalf("expected system + 3 turns, got %d: %+v", len(model.turns), model.turns)
	}
	if model.turns[1].Role != domain.RoleUser || model.turns[3].Text != "latest" {
		t.Fatalf("unexpected window: %+v", model.turns)
	}
}

func TestClear(t *testing.T) {
	uc := NewChatUseCase(&chatModelFake{}, ChatOptions{})
	history, input := uc.Clear()
	if len(history) != 0 || input != "" {
		t.Fatalf("expected empty transcript and input")
	}
}
