package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"storybook/lib/sl"
)

const (
	pollinationsAIAPIURL = "https://image.pollinations.ai/prompt/"
	// defaultMaxURLLength bounds the full generated URL.
	defaultMaxURLLength = 8000
)

// PollinationsAIProvider is the URL-templated synthesizer. The URL it builds
// is itself the image reference; nothing is fetched.
type PollinationsAIProvider struct {
	BaseURL      string
	MaxURLLength int
	log          *slog.Logger
}

// NewPollinationsAIProvider creates a new Pollinations.ai URL builder.
func NewPollinationsAIProvider(log *slog.Logger) *PollinationsAIProvider {
	return &PollinationsAIProvider{
		BaseURL:      pollinationsAIAPIURL,
		MaxURLLength: defaultMaxURLLength,
		log:          log.With(sl.Module("pollinations")),
	}
}

// GetName returns the name of the provider.
func (p *PollinationsAIProvider) GetName() string {
	return "pollinations"
}

// SynthesizeImage returns the generation URL for prompt. A prompt too long
// for the URL cap is truncated, never rejected.
func (p *PollinationsAIProvider) SynthesizeImage(_ context.Context, prompt string, params SynthesisParams) (string, error) {
	prompt = CollapseWhitespace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("pollinations: prompt is empty")
	}
	return p.BuildURL(prompt, params), nil
}

// BuildURL encodes prompt into the path and appends the fixed query.
func (p *PollinationsAIProvider) BuildURL(prompt string, params SynthesisParams) string {
	width, height := params.Width, params.Height
	if width == 0 {
		width = 1024
	}
	if height == 0 {
		height = 1024
	}

	query := url.Values{}
	if params.Model != "" {
		query.Add("model", params.Model)
	}
	query.Add("width", strconv.Itoa(width))
	query.Add("height", strconv.Itoa(height))
	query.Add("nologo", "true")
	query.Add("enhance", "true")
	suffix := "?" + query.Encode()

	base := p.BaseURL
	if base == "" {
		base = pollinationsAIAPIURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	encoded := url.PathEscape(prompt)
	maxURL := p.MaxURLLength
	if maxURL <= 0 {
		maxURL = defaultMaxURLLength
	}
	budget := maxURL - len(base) - len(suffix)
	if len(encoded) > budget {
		p.log.Warn("generated URL too long, truncating prompt",
			slog.Int("url_len", len(base)+len(encoded)+len(suffix)),
			slog.Int("max", maxURL),
		)
		encoded = url.PathEscape(truncateEncoded(prompt, budget))
	}
	return base + encoded + suffix
}

// truncateEncoded returns the longest prefix of prompt whose path-escaped
// form fits in budget bytes. It cuts only between whole characters and
// prefers the last whitespace inside the kept part.
func truncateEncoded(prompt string, budget int) string {
	if budget <= 0 {
		return ""
	}
	size, end, lastSpace := 0, 0, -1
	for i := 0; i < len(prompt); {
		r, w := utf8.DecodeRuneInString(prompt[i:])
		n := len(url.PathEscape(prompt[i : i+w]))
		if size+n > budget {
			if unicode.IsSpace(r) {
				// already at a word boundary
				lastSpace = end
			}
			break
		}
		size += n
		if unicode.IsSpace(r) {
			lastSpace = i
		}
		i += w
		end = i
	}
	if end < len(prompt) && lastSpace > 0 {
		end = lastSpace
	}
	return prompt[:end]
}
