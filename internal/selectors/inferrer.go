package selectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Inferrer produces the SelectorMap for a page.
type Inferrer interface {
	Infer(ctx context.Context, markup, domain string) (SelectorMap, error)
}

// SelectorInferenceError wraps any failure to obtain selectors from the model.
type SelectorInferenceError struct {
	Err error
}

func (e *SelectorInferenceError) Error() string {
	return fmt.Sprintf("Failed to analyze page structure: %v", e.Err)
}

func (e *SelectorInferenceError) Unwrap() error {
	return e.Err
}

// LLMInferrer asks a chat model for selectors. The model is shared by all
// requests and must be safe for concurrent use.
type LLMInferrer struct {
	model  llms.Model
	logger *slog.Logger
	opts   []llms.CallOption
}

func NewLLMInferrer(model llms.Model, logger *slog.Logger) *LLMInferrer {
	return &LLMInferrer{
		model:  model,
		logger: logger.With("component", "selector_inference"),
		opts:   []llms.CallOption{llms.WithTemperature(0)},
	}
}

type completion struct {
	resp *llms.ContentResponse
	err  error
}

// Infer sends the truncated markup to the model. The call runs on its own
// goroutine and is abandoned if ctx ends first.
func (i *LLMInferrer) Infer(ctx context.Context, markup, domain string) (SelectorMap, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt(markup, domain)),
	}

	i.logger.Info("requesting selectors", "domain", domain, "markup_chars", len(markup))

	done := make(chan completion, 1)
	go func() {
		resp, err := i.model.GenerateContent(ctx, messages, i.opts...)
		done <- completion{resp: resp, err: err}
	}()

	var c completion
	select {
	case <-ctx.Done():
		return nil, &SelectorInferenceError{Err: ctx.Err()}
	case c = <-done:
	}

	if c.err != nil {
		i.logger.Error("failed to get selectors", "domain", domain, "error", c.err)
		return nil, &SelectorInferenceError{Err: c.err}
	}
	if c.resp == nil || len(c.resp.Choices) == 0 {
		return nil, &SelectorInferenceError{Err: errors.New("model returned no choices")}
	}

	m := Parse(c.resp.Choices[0].Content)
	if missing := m.Missing(); len(missing) > 0 {
		i.logger.Warn("model reply is missing selectors", "domain", domain, "missing", missing)
	}
	i.logger.Info("selectors inferred", "domain", domain, "count", len(m))
	return m, nil
}

// NewOpenAIModel builds the chat model once at startup. baseURL may be empty.
func NewOpenAIModel(token, model, baseURL string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return llm, nil
}
