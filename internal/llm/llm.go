package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrUnknownProvider = errors.New("unknown llm provider")

// Options tune a single completion.
type Options struct {
	Model       string
	Temperature float64
	JSONOnly    bool
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// CallLogger records prompts and responses. *observability.Logger satisfies it.
type CallLogger interface {
	LogLLM(model, prompt, response string, err error)
}

// LangChain adapts a langchaingo model to Completer.
type LangChain struct {
	Model  llms.Model
	Logger CallLogger
}

func NewLangChain(model llms.Model, logger CallLogger) *LangChain {
	return &LangChain{Model: model, Logger: logger}
}

func (c *LangChain) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	if opts.JSONOnly {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, c.Model, prompt, callOpts...)
	if c.Logger != nil {
		c.Logger.LogLLM(opts.Model, prompt, resp, err)
	}
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return resp, nil
}

// ProviderSettings is the subset of provider configuration needed to build a model.
type ProviderSettings struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewModel builds a langchaingo model for the named provider.
func NewModel(provider string, s ProviderSettings) (llms.Model, error) {
	switch provider {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(s.APIKey),
			openai.WithModel(s.Model),
		}
		if s.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(s.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(s.APIKey),
			anthropic.WithModel(s.Model),
		}
		if s.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(s.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(s.Model)}
		if s.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(s.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}
