package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/plant-doctor/internal/core/domain"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/llm"
	"github.com/kirillkom/plant-doctor/internal/infrastructure/resilience"
)

// Client talks to a local Ollama server through /api/chat.
type Client struct {
	transport *llm.JSONTransport
	model     string
	executor  *resilience.Executor
}

func New(baseURL, model string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		transport: &llm.JSONTransport{
			Provider:   "ollama",
			BaseURL:    strings.TrimRight(baseURL, "/"),
			HTTPClient: &http.Client{Timeout: timeout},
		},
		model:    model,
		executor: executor,
	}
}

func (c *Client) Name() string { return "ollama" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

func (c *Client) Complete(ctx context.Context, turns []domain.ChatTurn) (string, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: make([]chatMessage, 0, len(turns)),
		Stream:   false,
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, chatMessage{Role: string(turn.Role), Content: turn.Text})
	}

	reply, err := resilience.Do(ctx, c.executor, "ollama.chat", func(ctx context.Context) (string, error) {
		var resp chatResponse
		if err := c.transport.PostJSON(ctx, "/api/chat", req, &resp, "chat"); err != nil {
			return "", err
		}
		if resp.Error != "" {
			return "", fmt.Errorf("ollama chat: %s", resp.Error)
		}
		return strings.TrimSpace(resp.Message.Content), nil
	}, llm.ClassifyError)
	if err != nil {
		return "", llm.WrapChatError("ollama.chat", err, llm.ClassifyError)
	}
	if reply == "" {
		return "", domain.WrapError(domain.ErrChatAdapter, "ollama.chat", fmt.Errorf("empty reply"))
	}
	return reply, nil
}
