// Package openaicompat is a chat model client for any endpoint speaking the
// OpenAI chat completions protocol (Groq, OpenAI, vLLM, LM Studio).
package openaicompat

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

const (
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	GroqDefaultModel = "llama-3.3-70b-versatile"

	OpenAIBaseURL      = "https://api.openai.com/v1"
	OpenAIDefaultModel = "gpt-4o-mini"
)

type Options struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	name      string
	transport *llm.JSONTransport
	opts      Options
	executor  *resilience.Executor
}

func New(opts Options, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(opts.Provider) == "" {
		opts.Provider = "groq"
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = GroqBaseURL
		if opts.Provider == "openai" {
			opts.BaseURL = OpenAIBaseURL
		}
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = GroqDefaultModel
		if opts.Provider == "openai" {
			opts.Model = OpenAIDefaultModel
		}
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%s chat: api key is empty", opts.Provider)
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimSpace(opts.APIKey))
	return &Client{
		name: opts.Provider,
		transport: &llm.JSONTransport{
			Provider:   opts.Provider,
			BaseURL:    strings.TrimRight(opts.BaseURL, "/"),
			HTTPClient: &http.Client{Timeout: opts.Timeout},
			Header:     header,
		},
		opts:     opts,
		executor: executor,
	}, nil
}

func (c *Client) Name() string { return c.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Index        int     `json:"index"`
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, turns []domain.ChatTurn) (string, error) {
	req := completionRequest{
		Model:       c.opts.Model,
		Messages:    make([]message, 0, len(turns)),
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, message{Role: string(turn.Role), Content: turn.Text})
	}

	operation := c.name + ".chat_completions"
	reply, err := resilience.Do(ctx, c.executor, operation, func(ctx context.Context) (string, error) {
		var resp completionResponse
		if err := c.transport.PostJSON(ctx, "/chat/completions", req, &resp, "chat_completions"); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s chat: no choices in response", c.name)
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}, llm.ClassifyError)
	if err != nil {
		return "", llm.WrapChatError(operation, err, llm.ClassifyError)
	}
	if reply == "" {
		return "", domain.WrapError(domain.ErrChatAdapter, operation, fmt.Errorf("empty reply"))
	}
	return reply, nil
}
