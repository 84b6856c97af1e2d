package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds settings for OpenAI and OpenAI-compatible endpoints.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the public endpoint, e.g. for Azure-style gateways
	// or a local proxy. It must include the version prefix ("/v1").
	BaseURL string

	// Model is used when a request does not name one.
	Model string
}

// OpenAIProvider implements Provider on the chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("LLM_API_KEY is required for the openai provider")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), config: cfg}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if len(req.Messages) == 0 {
		return nil, &UpstreamError{Provider: p.Name(), Kind: KindPermanent, Err: ErrEmptyMessages}
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, p.classify(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, &UpstreamError{Provider: p.Name(), Kind: KindPermanent, Err: ErrInvalidResponse}
	}

	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// Heartbeat lists models, which needs a valid key but costs no tokens.
func (p *OpenAIProvider) Heartbeat(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return p.classify(err)
	}
	return nil
}

func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &UpstreamError{
			Provider:   p.Name(),
			Kind:       KindForStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &UpstreamError{
			Provider:   p.Name(),
			Kind:       KindForStatus(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return transportError(p.Name(), err)
}
