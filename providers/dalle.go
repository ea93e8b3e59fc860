package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"storybook/lib/sl"
)

const dalleMaxPromptLength = 1000

// DalleProvider is the direct image API: one POST, one hosted URL back.
type DalleProvider struct {
	openAIClient
	// MaxPromptLength caps the prompt in characters before sending.
	MaxPromptLength int
}

type dalleRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
}

type dalleResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// NewDalleProvider creates a new DALL-E client.
func NewDalleProvider(apiKey string, log *slog.Logger) *DalleProvider {
	return &DalleProvider{
		openAIClient: openAIClient{
			APIKey:  apiKey,
			BaseURL: openAIAPIURL,
			Client:  &http.Client{},
			log:     log.With(sl.Module("dalle")),
		},
		MaxPromptLength: dalleMaxPromptLength,
	}
}

// GetName returns the name of the provider.
func (p *DalleProvider) GetName() string {
	return "dalle"
}

// SynthesizeImage generates one image and returns its hosted URL.
func (p *DalleProvider) SynthesizeImage(ctx context.Context, prompt string, params SynthesisParams) (string, error) {
	prompt = TruncateRunes(CollapseWhitespace(prompt), p.MaxPromptLength)
	if prompt == "" {
		return "", fmt.Errorf("dalle: prompt is empty")
	}

	req := dalleRequest{
		Model:   params.Model,
		Prompt:  prompt,
		N:       1,
		Size:    fmt.Sprintf("%dx%d", params.Width, params.Height),
		Quality: params.Quality,
	}
	if req.Model == "" {
		req.Model = "dall-e-3"
	}
	if params.Width == 0 || params.Height == 0 {
		req.Size = "1024x1024"
	}
	if req.Quality == "" {
		req.Quality = "standard"
	}

	p.log.Info("calling provider", slog.String("model", req.Model), slog.Int("prompt_len", len(prompt)))

	var resp dalleResponse
	if err := p.postJSON(ctx, p.GetName(), "/images/generations", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &ProviderError{Provider: p.GetName(), Message: "DALL-E did not return image URL"}
	}
	return resp.Data[0].URL, nil
}
