package llm

import (
	"context"
	"net/http"
	"strings"
)

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaConfig holds configuration for the Ollama provider
type OllamaConfig struct {
	BaseURL string // default: http://localhost:11434
	Model   string // default: llama3
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: newLLMHTTPClient(),
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	EvalCount       int         `json:"eval_count"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

func (p *OllamaProvider) buildRequest(req *Request) *ollamaRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	out := &ollamaRequest{Model: model, Messages: chatMessages(req)}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		out.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	return out
}

func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	var resp ollamaResponse
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/chat", nil, p.buildRequest(req), &resp); err != nil {
		return nil, err
	}
	if resp.Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	reason := resp.DoneReason
	if reason == "" {
		reason = "stop"
	}
	return &Response{
		Content:      resp.Message.Content,
		FinishReason: reason,
		Usage:        Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
	}, nil
}
