package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/llm"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/resilience"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash"

type Client struct {
	client   *genai.Client
	model    string
	executor *resilience.Executor
}

func New(ctx context.Context, apiKey, model string, executor *resilience.Executor) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{client: cl, model: strings.TrimSpace(model), executor: executor}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Complete(ctx context.Context, turns []domain.ChatTurn) (string, error) {
	system, history, last, err := splitTurns(turns)
	if err != nil {
		return "", domain.WrapError(domain.ErrChatAdapter, "gemini.chat", err)
	}

	m := c.client.GenerativeModel(c.model)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	reply, err := resilience.Do(ctx, c.executor, "gemini.chat", func(ctx context.Context) (string, error) {
		cs := m.StartChat()
		cs.History = history
		resp, err := cs.SendMessage(ctx, genai.Text(last))
		if err != nil {
			return "", err
		}
		txt := firstText(resp)
		if txt == "" {
			return "", fmt.Errorf("gemini chat: empty response")
		}
		return strings.TrimSpace(txt), nil
	}, classifyError)
	if err != nil {
		return "", llm.WrapChatError("gemini.chat", err, classifyError)
	}
	return reply, nil
}

// splitTurns maps the transcript onto Gemini's shape: system turns become the
// system instruction, the final user turn is the message to send and the rest
// is chat history with the "model" role for assistant turns.
func splitTurns(turns []domain.ChatTurn) (string, []*genai.Content, string, error) {
	var system []string
	var convo []domain.ChatTurn
	for _, turn := range turns {
		if turn.Role == domain.RoleSystem {
			system = append(system, turn.Text)
			continue
		}
		convo = append(convo, turn)
	}
	if len(convo) == 0 || convo[len(convo)-1].Role != domain.RoleUser {
		return "", nil, "", errors.New("transcript must end with a user turn")
	}

	history := make([]*genai.Content, 0, len(convo)-1)
	for _, turn := range convo[:len(convo)-1] {
		role := "user"
		if turn.Role == domain.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}
	return strings.Join(system, "\n\n"), history, convo[len(convo)-1].Text, nil
}

func classifyError(err error) resilience.ErrorClassification {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return llm.ClassifyStatus(apiErr.Code)
	}
	return llm.ClassifyError(err)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
