package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"storybook/lib/sl"
	"storybook/providers"
	"storybook/resilience"
)

const (
	defaultGenerateModel = "gpt-4o-mini"
	defaultChatModel     = "gpt-4o"
	probePrompt          = "test"
	probeMaxTokens       = 5
)

// TextResult is the answer of a text call.
type TextResult struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Model   string `json:"model"`
}

// Completion is the answer of a completion call.
type Completion struct {
	Success    bool   `json:"success"`
	Original   string `json:"original"`
	Completion string `json:"completion"`
}

// ModelProbe reports the outcome of FindWorkingModel.
type ModelProbe struct {
	Success bool     `json:"success"`
	Model   string   `json:"model,omitempty"`
	Tested  []string `json:"tested"`
	Errors  []string `json:"errors,omitempty"`
}

func (o *Orchestrator) textGenerator() (providers.TextGenerator, error) {
	if o.text == nil {
		return nil, fmt.Errorf("text generation: %w", ErrNotConfigured)
	}
	return o.text, nil
}

func (o *Orchestrator) textModel(requested, openAIDefault string) string {
	if requested != "" {
		return requested
	}
	if o.text.GetName() == "openai" {
		return openAIDefault
	}
	return o.textDefaultModel
}

func (o *Orchestrator) generateText(ctx context.Context, messages []providers.Message, opts providers.TextOptions) (string, error) {
	tg, err := o.textGenerator()
	if err != nil {
		return "", err
	}
	o.log.Debug("calling provider", slog.String("provider", tg.GetName()), slog.String("model", opts.Model))
	return resilience.Do(ctx, o.retrier, tg.GetName()+".text", func(ctx context.Context) (string, error) {
		return tg.GenerateText(ctx, messages, opts)
	})
}

// GenerateText answers a single prompt.
func (o *Orchestrator) GenerateText(ctx context.Context, prompt string, opts providers.TextOptions) (*TextResult, error) {
	if _, err := o.textGenerator(); err != nil {
		return nil, err
	}
	opts.Model = o.textModel(opts.Model, defaultGenerateModel)
	text, err := o.generateText(ctx, []providers.Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		return nil, err
	}
	return &TextResult{Success: true, Text: text, Model: opts.Model}, nil
}

// Chat answers message in the context of history.
func (o *Orchestrator) Chat(ctx context.Context, message string, history []providers.Message, opts providers.TextOptions) (*TextResult, error) {
	if _, err := o.textGenerator(); err != nil {
		return nil, err
	}
	opts.Model = o.textModel(opts.Model, defaultChatModel)
	messages := make([]providers.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: message})

	text, err := o.generateText(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return &TextResult{Success: true, Text: text, Model: opts.Model}, nil
}

// Complete continues text.
func (o *Orchestrator) Complete(ctx context.Context, text string) (*Completion, error) {
	res, err := o.GenerateText(ctx, "Complete the following text: "+text, providers.TextOptions{})
	if err != nil {
		return nil, err
	}
	return &Completion{Success: true, Original: text, Completion: res.Text}, nil
}

// ListModels returns the models of the text provider.
func (o *Orchestrator) ListModels() ([]providers.ModelCapabilities, error) {
	tg, err := o.textGenerator()
	if err != nil {
		return nil, err
	}
	return tg.GetModels(), nil
}

// FindWorkingModel probes the provider models in order and returns the
// first one that answers.
func (o *Orchestrator) FindWorkingModel(ctx context.Context) (*ModelProbe, error) {
	tg, err := o.textGenerator()
	if err != nil {
		return nil, err
	}

	probe := &ModelProbe{}
	for _, m := range tg.GetModels() {
		probe.Tested = append(probe.Tested, m.Name)
		_, err := tg.GenerateText(ctx, []providers.Message{{Role: "user", Content: probePrompt}},
			providers.TextOptions{Model: m.Name, MaxTokens: probeMaxTokens})
		if err != nil {
			o.log.Debug("model probe failed", slog.String("model", m.Name), sl.Err(err))
			probe.Errors = append(probe.Errors, fmt.Sprintf("%s: %v", m.Name, err))
			continue
		}
		probe.Success = true
		probe.Model = m.Name
		probe.Errors = nil
		return probe, nil
	}
	return probe, nil
}
