package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"storybook/lib/sl"

	"golang.org/x/time/rate"
)

const openAIAPIURL = "https://api.openai.com/v1"

var openAIModels = []ModelCapabilities{
	{Name: "gpt-4o-mini", SupportedParams: []string{"temperature", "max_tokens", "image"}, Vision: true},
	{Name: "gpt-4o", SupportedParams: []string{"temperature", "max_tokens", "image"}, Vision: true},
	{Name: "gpt-4-turbo", SupportedParams: []string{"temperature", "max_tokens", "image"}, Vision: true},
	{Name: "gpt-4", SupportedParams: []string{"temperature", "max_tokens"}},
	{Name: "gpt-3.5-turbo", SupportedParams: []string{"temperature", "max_tokens"}},
}

// openAIClient is the HTTP plumbing shared by the chat and image adapters.
type openAIClient struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	// Limiter, when set, paces every outbound request.
	Limiter *rate.Limiter
	log     *slog.Logger
}

func (c *openAIClient) postJSON(ctx context.Context, provider, path string, payload, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: waiting for rate limiter: %w", provider, err)
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal payload: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: failed to call external API: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newStatusError(provider, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", provider, err)
	}
	return nil
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAIProvider implements Describer and TextGenerator on chat completions.
type OpenAIProvider struct {
	openAIClient
	DefaultModel string
}

// NewOpenAIProvider creates a new OpenAI chat client.
func NewOpenAIProvider(apiKey string, log *slog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		openAIClient: openAIClient{
			APIKey:  apiKey,
			BaseURL: openAIAPIURL,
			Client:  &http.Client{},
			log:     log.With(sl.Module("openai")),
		},
		DefaultModel: "gpt-4o-mini",
	}
}

// GetName returns the name of the provider.
func (p *OpenAIProvider) GetName() string {
	return "openai"
}

// GetModels returns the list of chat models offered by OpenAI.
func (p *OpenAIProvider) GetModels() []ModelCapabilities {
	return openAIModels
}

// Describe sends the prompt followed by the images as data URLs.
func (p *OpenAIProvider) Describe(ctx context.Context, images []ImageInput, prompt string, opts DescribeOptions) (string, error) {
	content := []chatContentPart{{Type: "text", Text: prompt}}
	for _, img := range images {
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		content = append(content, chatContentPart{
			Type: "image_url",
			ImageURL: &chatImageURL{
				URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}

	req := chatRequest{
		Model:       p.model(opts.Model),
		Messages:    []chatMessage{{Role: "user", Content: content}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	p.log.Debug("calling provider",
		slog.String("model", req.Model),
		slog.Int("images", len(images)),
		slog.Int("prompt_len", len(prompt)),
	)
	return p.complete(ctx, req)
}

// GenerateText sends a plain conversation and returns the first answer.
func (p *OpenAIProvider) GenerateText(ctx context.Context, messages []Message, opts TextOptions) (string, error) {
	req := chatRequest{
		Model:       p.model(opts.Model),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		req.Messages = append(req.Messages, chatMessage{Role: role, Content: m.Content})
	}
	p.log.Debug("calling provider", slog.String("model", req.Model), slog.Int("messages", len(messages)))
	return p.complete(ctx, req)
}

func (p *OpenAIProvider) complete(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	if err := p.postJSON(ctx, p.GetName(), "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.GetName(), Message: "chat completion: empty choices"}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &ProviderError{Provider: p.GetName(), Message: "chat completion: empty text"}
	}
	return text, nil
}

func (p *OpenAIProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.DefaultModel
}
