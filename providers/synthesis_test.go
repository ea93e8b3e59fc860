package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDalleProvider_SynthesizeImage(t *testing.T) {
	var got dalleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"created":1,"data":[{"url":"https://images.example/1.png"}]}`))
	}))
	defer server.Close()

	p := NewDalleProvider("sk-test", testLogger())
	p.BaseURL = server.URL

	long := strings.Repeat("word ", 400)
	u, err := p.SynthesizeImage(context.Background(), "line one\n\n"+long, SynthesisParams{Width: 1024, Height: 1024})
	if err != nil {
		t.Fatalf("SynthesizeImage() error = %v", err)
	}
	if u != "https://images.example/1.png" {
		t.Errorf("url = %q", u)
	}
	if got.Model != "dall-e-3" || got.Size != "1024x1024" || got.Quality != "standard" || got.N != 1 {
		t.Errorf("request = %+v", got)
	}
	if n := utf8.RuneCountInString(got.Prompt); n > dalleMaxPromptLength {
		t.Errorf("prompt length = %d, want <= %d", n, dalleMaxPromptLength)
	}
	if strings.Contains(got.Prompt, "\n") {
		t.Error("prompt still contains newlines")
	}
}

func TestDalleProvider_MissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"created":1,"data":[]}`))
	}))
	defer server.Close()

	p := NewDalleProvider("sk-test", testLogger())
	p.BaseURL = server.URL

	_, err := p.SynthesizeImage(context.Background(), "a fox", SynthesisParams{})
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if !strings.Contains(perr.Message, "did not return image URL") {
		t.Errorf("message = %q", perr.Message)
	}
}

func TestPollinationsAIProvider_BuildURL(t *testing.T) {
	p := NewPollinationsAIProvider(testLogger())

	u, err := p.SynthesizeImage(context.Background(), "a  cute\nfox", SynthesisParams{Width: 1024, Height: 1024})
	if err != nil {
		t.Fatalf("SynthesizeImage() error = %v", err)
	}
	want := "https://image.pollinations.ai/prompt/a%20cute%20fox?enhance=true&height=1024&nologo=true&width=1024"
	if u != want {
		t.Errorf("url = %q\nwant  %q", u, want)
	}
}

func TestPollinationsAIProvider_BaseURLWithoutSlash(t *testing.T) {
	p := NewPollinationsAIProvider(testLogger())
	p.BaseURL = "https://pollinations.internal/prompt"

	got := p.BuildURL("fox", SynthesisParams{})
	want := "https://pollinations.internal/prompt/fox?enhance=true&height=1024&nologo=true&width=1024"
	if got != want {
		t.Errorf("url = %q\nwant  %q", got, want)
	}
}

func TestPollinationsAIProvider_Truncation(t *testing.T) {
	p := NewPollinationsAIProvider(testLogger())
	p.MaxURLLength = 200

	tests := []struct {
		name   string
		prompt string
	}{
		{"ascii words", strings.Repeat("storybook fox ", 40)},
		{"multibyte", strings.Repeat("ფერადი ტყე ", 40)},
		{"no whitespace", strings.Repeat("é", 300)},
		{"punctuation", strings.Repeat("a&b?c#d ", 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := p.SynthesizeImage(context.Background(), tt.prompt, SynthesisParams{})
			if err != nil {
				t.Fatalf("SynthesizeImage() error = %v", err)
			}
			if len(u) > p.MaxURLLength {
				t.Errorf("url length = %d, want <= %d", len(u), p.MaxURLLength)
			}
			parsed, err := url.Parse(u)
			if err != nil {
				t.Fatalf("url does not parse: %v", err)
			}
			segment := strings.TrimPrefix(parsed.EscapedPath(), "/prompt/")
			decoded, err := url.PathUnescape(segment)
			if err != nil {
				t.Fatalf("truncated inside an escape sequence: %v", err)
			}
			if !utf8.ValidString(decoded) {
				t.Error("truncated inside a multibyte character")
			}
			if decoded == "" {
				t.Error("prompt truncated to nothing")
			}
			if !strings.HasPrefix(CollapseWhitespace(tt.prompt), decoded) {
				t.Errorf("decoded %q is not a prefix of the prompt", decoded)
			}
			if strings.HasSuffix(decoded, " ") {
				t.Error("truncated prompt ends with whitespace")
			}
		})
	}
}

func TestTruncateEncodedPrefersWhitespace(t *testing.T) {
	got := truncateEncoded("hello wonderful world", 17)
	if got != "hello wonderful" {
		t.Errorf("truncateEncoded() = %q, want %q", got, "hello wonderful")
	}
	if got := truncateEncoded("short", 100); got != "short" {
		t.Errorf("truncateEncoded() = %q, want unchanged", got)
	}
}

func TestParseModelName(t *testing.T) {
	tests := []struct {
		in        string
		provider  string
		model     string
		wantError bool
	}{
		{"gemini/gemini-2.5-flash", "gemini", "gemini-2.5-flash", false},
		{"openai/gpt-4o", "openai", "gpt-4o", false},
		{"gpt-4o", "", "", true},
		{"/gpt-4o", "", "", true},
	}
	for _, tt := range tests {
		provider, model, err := ParseModelName(tt.in)
		if (err != nil) != tt.wantError {
			t.Errorf("ParseModelName(%q) error = %v", tt.in, err)
			continue
		}
		if provider != tt.provider || model != tt.model {
			t.Errorf("ParseModelName(%q) = %q, %q", tt.in, provider, model)
		}
	}
}

func TestPromptCleaners(t *testing.T) {
	if got := CollapseWhitespace("  a\n\n b\t c  "); got != "a b c" {
		t.Errorf("CollapseWhitespace() = %q", got)
	}
	if got := StripSpecialChars(`a "fox" (red) & <blue>, ok!`); got != "a fox red  blue, ok!" {
		t.Errorf("StripSpecialChars() = %q", got)
	}
	if got := TruncateRunes("abcdef", 3); got != "abc" {
		t.Errorf("TruncateRunes() = %q", got)
	}
}
