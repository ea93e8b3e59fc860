package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storybook/lib/sl"

	"google.golang.org/genai"
)

var geminiModels = []ModelCapabilities{
	{Name: "gemini-2.5-flash", SupportedParams: []string{"temperature", "max_tokens", "image"}, Vision: true},
	{Name: "gemini-2.5-pro", SupportedParams: []string{"temperature", "max_tokens", "image"}, Vision: true},
	{Name: "gemini-2.0-flash", SupportedParams: []string{"temperature", "max_tokens", "image"}, Vision: true},
}

// contentGenerator is the slice of *genai.Models the provider relies on.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements Describer and TextGenerator on the Gemini API.
type GeminiProvider struct {
	models       contentGenerator
	DefaultModel string
	log          *slog.Logger
}

// NewGeminiClient opens a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return client, nil
}

// NewGeminiProvider wraps an existing client.
func NewGeminiProvider(client *genai.Client, log *slog.Logger) *GeminiProvider {
	return &GeminiProvider{
		models:       client.Models,
		DefaultModel: "gemini-2.5-flash",
		log:          log.With(sl.Module("gemini")),
	}
}

// GetName returns the name of the provider.
func (p *GeminiProvider) GetName() string {
	return "gemini"
}

// GetModels returns the Gemini models offered.
func (p *GeminiProvider) GetModels() []ModelCapabilities {
	return geminiModels
}

// Describe sends the prompt and the images as inline data in one user turn.
func (p *GeminiProvider) Describe(ctx context.Context, images []ImageInput, prompt string, opts DescribeOptions) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, img := range images {
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: mimeType,
				Data:     img.Data,
			},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	model := p.model(opts.Model)
	p.log.Debug("calling provider", slog.String("model", model), slog.Int("images", len(images)))
	return p.generate(ctx, model, contents, generationConfig(opts.Temperature, opts.MaxTokens))
}

// GenerateText maps the conversation onto Gemini user/model turns.
func (p *GeminiProvider) GenerateText(ctx context.Context, messages []Message, opts TextOptions) (string, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" || m.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	model := p.model(opts.Model)
	p.log.Debug("calling provider", slog.String("model", model), slog.Int("messages", len(messages)))
	return p.generate(ctx, model, contents, generationConfig(opts.Temperature, opts.MaxTokens))
}

func (p *GeminiProvider) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	resp, err := p.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", wrapGeminiError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &ProviderError{Provider: p.GetName(), Message: "response contains no text"}
	}
	return text, nil
}

func (p *GeminiProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.DefaultModel
}

func generationConfig(temperature *float64, maxTokens int) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if temperature != nil {
		t := float32(*temperature)
		config.Temperature = &t
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	return config
}

// wrapGeminiError keeps the upstream status code so retries can classify it.
func wrapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "gemini", StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ProviderError{Provider: "gemini", StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini: failed to generate content: %w", err)
}
