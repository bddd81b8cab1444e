package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/core/ports"
)

const DefaultAgronomistPrompt = `You are an experienced agronomist and plant pathologist helping farmers and gardeners.
Answer questions about crop diseases, pests, nutrient deficiencies, irrigation and safe treatment practices.
Prefer integrated pest management and mention protective equipment when recommending chemical treatments.
If a question needs a field inspection or lab test to answer reliably, say so.
Keep answers practical and concise.`

type ChatOptions struct {
	// ContextTurns caps how many prior turns are forwarded to the model.
	ContextTurns int
	SystemPrompt string
	Observer     ports.ChatObserver
	Logger       *slog.Logger
}

type ChatUseCase struct {
	model ports.ChatModel
	opts  ChatOptions
}

func NewChatUseCase(model ports.ChatModel, opts ChatOptions) *ChatUseCase {
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = 20
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultAgronomistPrompt
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ChatUseCase{model: model, opts: opts}
}

// Reply extends a copy of history with the user turn and the assistant reply
// and returns it with the cleared input. Blank input returns history as is
// without contacting the model. Model failures are rendered as the assistant
// turn, so exactly one user/assistant pair is appended either way.
func (uc *ChatUseCase) Reply(ctx context.Context, userText string, history []domain.ChatTurn) ([]domain.ChatTurn, string) {
	if strings.TrimSpace(userText) == "" {
		return history, ""
	}

	updated := make([]domain.ChatTurn, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, domain.ChatTurn{Role: domain.RoleUser, Text: userText})

	reply, err := uc.complete(ctx, updated)
	if err != nil {
		reply = FormatChatError(err)
	}
	updated = append(updated, domain.ChatTurn{Role: domain.RoleAssistant, Text: reply})
	return updated, ""
}

// Clear resets the conversation.
func (uc *ChatUseCase) Clear() ([]domain.ChatTurn, string) {
	return []domain.ChatTurn{}, ""
}

func (uc *ChatUseCase) complete(ctx context.Context, transcript []domain.ChatTurn) (string, error) {
	started := time.Now()
	provider := "none"
	if uc.model != nil {
		provider = uc.model.Name()
	}

	var reply string
	var err error
	if uc.model == nil {
		err = domain.WrapError(domain.ErrChatAdapter, "chat", errNoChatModel)
	} else {
		reply, err = uc.model.Complete(ctx, uc.buildTurns(transcript))
		if err == nil && strings.TrimSpace(reply) == "" {
			err = domain.WrapError(domain.ErrChatAdapter, "chat", errEmptyReply)
		}
		if err != nil && !domain.IsKind(err, domain.ErrChatAdapter) {
			err = domain.WrapError(domain.ErrChatAdapter, "chat", err)
		}
	}

	status := "success"
	if err != nil {
		status = "error"
		uc.opts.Logger.Warn("chat_completion_failed", "provider", provider, "error", err)
	}
	if uc.opts.Observer != nil {
		uc.opts.Observer.ObserveChat(provider, status, time.Since(started))
	}
	return reply, err
}

// buildTurns prepends the agronomist instruction to the most recent turns.
func (uc *ChatUseCase) buildTurns(transcript []domain.ChatTurn) []domain.ChatTurn {
	recent := transcript
	if len(recent) > uc.opts.ContextTurns {
		recent = recent[len(recent)-uc.opts.ContextTurns:]
	}
	// Some providers reject a window that opens with an assistant turn.
	for len(recent) > 1 && recent[0].Role != domain.RoleUser {
		recent = recent[1:]
	}
	turns := make([]domain.ChatTurn, 0, len(recent)+1)
	turns = append(turns, domain.ChatTurn{Role: domain.RoleSystem, Text: uc.opts.SystemPrompt})
	for _, turn := range recent {
		if turn.Role == domain.RoleSystem {
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}
