package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaConfig holds Ollama-specific configuration.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (e.g., "http://localhost:11434").
	// Empty uses OLLAMA_HOST or the client default.
	Host string

	// Model is used when a request does not name one.
	Model string
}

// OllamaProvider implements Provider for a local or remote Ollama server.
type OllamaProvider struct {
	client *api.Client
	config OllamaConfig
}

// NewOllama creates a new Ollama provider.
func NewOllama(cfg OllamaConfig) (*OllamaProvider, error) {
	var client *api.Client
	if cfg.Host != "" {
		parsedURL, err := url.Parse(cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host: %w", err)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
	}

	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}

	return &OllamaProvider{client: client, config: cfg}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

// Complete sends a non-streaming chat request.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if len(req.Messages) == 0 {
		return nil, &UpstreamError{Provider: p.Name(), Kind: KindPermanent, Err: ErrEmptyMessages}
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	messages := make([]api.Message, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = api.Message{Role: msg.Role, Content: msg.Content}
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
		},
		Stream: &stream,
	}

	var response api.ChatResponse
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return nil, p.classify(err)
	}

	if response.Message.Content == "" {
		return nil, &UpstreamError{Provider: p.Name(), Kind: KindPermanent, Err: ErrInvalidResponse}
	}

	return &Completion{
		Content:      response.Message.Content,
		Model:        response.Model,
		PromptTokens: response.PromptEvalCount,
		TotalTokens:  response.PromptEvalCount + response.EvalCount,
	}, nil
}

// Heartbeat checks if the Ollama service is reachable.
func (p *OllamaProvider) Heartbeat(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return p.classify(err)
	}
	return nil
}

func (p *OllamaProvider) classify(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &UpstreamError{
			Provider:   p.Name(),
			Kind:       KindForStatus(statusErr.StatusCode),
			StatusCode: statusErr.StatusCode,
			Err:        err,
		}
	}
	return transportError(p.Name(), err)
}
