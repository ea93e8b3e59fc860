package providers

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type stubContentGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (s *stubContentGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.model = model
	s.contents = contents
	s.config = config
	return s.resp, s.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestGeminiProvider_Describe(t *testing.T) {
	stub := &stubContentGenerator{resp: textResponse("  a child in a red coat ")}
	p := &GeminiProvider{models: stub, DefaultModel: "gemini-2.5-flash", log: testLogger()}

	images := []ImageInput{
		{Data: []byte("bg"), MIMEType: "image/png"},
		{Data: []byte("child")},
	}
	text, err := p.Describe(context.Background(), images, "describe", DescribeOptions{MaxTokens: 1000})
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if text != "a child in a red coat" {
		t.Errorf("Describe() = %q", text)
	}
	if stub.model != "gemini-2.5-flash" {
		t.Errorf("model = %q", stub.model)
	}
	if len(stub.contents) != 1 || len(stub.contents[0].Parts) != 3 {
		t.Fatalf("contents = %+v, want one turn with three parts", stub.contents)
	}
	parts := stub.contents[0].Parts
	if parts[0].Text != "describe" {
		t.Errorf("first part = %+v", parts[0])
	}
	if parts[1].InlineData.MIMEType != "image/png" || parts[2].InlineData.MIMEType != "image/jpeg" {
		t.Errorf("mime types = %s, %s", parts[1].InlineData.MIMEType, parts[2].InlineData.MIMEType)
	}
	if stub.config.MaxOutputTokens != 1000 {
		t.Errorf("MaxOutputTokens = %d", stub.config.MaxOutputTokens)
	}
}

func TestGeminiProvider_Errors(t *testing.T) {
	t.Run("api error keeps status", func(t *testing.T) {
		stub := &stubContentGenerator{err: genai.APIError{Code: 429, Message: "Quota exceeded. Please retry in 39.5s."}}
		p := &GeminiProvider{models: stub, DefaultModel: "gemini-2.5-flash", log: testLogger()}

		_, err := p.GenerateText(context.Background(), []Message{{Content: "hi"}}, TextOptions{})
		var perr *ProviderError
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want *ProviderError", err)
		}
		if perr.StatusCode != 429 {
			t.Errorf("StatusCode = %d, want 429", perr.StatusCode)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		stub := &stubContentGenerator{resp: textResponse("   ")}
		p := &GeminiProvider{models: stub, DefaultModel: "gemini-2.5-flash", log: testLogger()}

		if _, err := p.GenerateText(context.Background(), []Message{{Content: "hi"}}, TextOptions{}); err == nil {
			t.Error("expected error for empty response text")
		}
	})

	t.Run("transport error is wrapped", func(t *testing.T) {
		stub := &stubContentGenerator{err: context.DeadlineExceeded}
		p := &GeminiProvider{models: stub, DefaultModel: "gemini-2.5-flash", log: testLogger()}

		_, err := p.GenerateText(context.Background(), []Message{{Content: "hi"}}, TextOptions{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want wrapped deadline", err)
		}
	})
}

func TestGeminiProvider_GenerateTextRoles(t *testing.T) {
	stub := &stubContentGenerator{resp: textResponse("ok")}
	p := &GeminiProvider{models: stub, DefaultModel: "gemini-2.5-flash", log: testLogger()}

	msgs := []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}, {Content: "c"}}
	if _, err := p.GenerateText(context.Background(), msgs, TextOptions{Model: "gemini-2.5-pro"}); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if stub.model != "gemini-2.5-pro" {
		t.Errorf("model = %q", stub.model)
	}
	wantRoles := []string{"user", "model", "user"}
	for i, c := range stub.contents {
		if c.Role != wantRoles[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
}
