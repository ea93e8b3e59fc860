package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"storybook/fetch"
	"storybook/providers"
	"storybook/storage"

	"github.com/google/go-cmp/cmp"
)

type stubText struct {
	name     string
	failing  map[string]bool
	messages [][]providers.Message
	opts     []providers.TextOptions
}

func (s *stubText) GetName() string { return s.name }

func (s *stubText) GetModels() []providers.ModelCapabilities {
	return []providers.ModelCapabilities{{Name: "m1"}, {Name: "m2"}, {Name: "m3"}}
}

func (s *stubText) GenerateText(_ context.Context, messages []providers.Message, opts providers.TextOptions) (string, error) {
	s.messages = append(s.messages, messages)
	s.opts = append(s.opts, opts)
	if s.failing[opts.Model] {
		return "", errors.New("model not found")
	}
	return "answer to " + messages[len(messages)-1].Content, nil
}

func TestGenerateTextDefaults(t *testing.T) {
	text := &stubText{name: "openai"}
	env := newTestEnv(func(d *Deps) { d.Text = text })
	ctx := context.Background()

	res, err := env.orch.GenerateText(ctx, "hello", providers.TextOptions{})
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if res.Model != defaultGenerateModel || res.Text != "answer to hello" {
		t.Errorf("GenerateText() = %+v", res)
	}

	res, err = env.orch.Chat(ctx, "and now?", []providers.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}, providers.TextOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Model != defaultChatModel {
		t.Errorf("Chat() model = %q, want %q", res.Model, defaultChatModel)
	}
	want := []providers.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "and now?"},
	}
	if diff := cmp.Diff(want, text.messages[1]); diff != "" {
		t.Errorf("chat messages mismatch (-want +got):\n%s", diff)
	}

	c, err := env.orch.Complete(ctx, "Once upon a time")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if c.Original != "Once upon a time" || c.Completion != "answer to Complete the following text: Once upon a time" {
		t.Errorf("Complete() = %+v", c)
	}
}

func TestGenerateTextGeminiDefault(t *testing.T) {
	text := &stubText{name: "gemini"}
	env := newTestEnv(func(d *Deps) {
		d.Text = text
		d.TextDefaultModel = "gemini-2.5-flash"
	})
	res, err := env.orch.Chat(context.Background(), "hi", nil, providers.TextOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Model != "gemini-2.5-flash" {
		t.Errorf("Chat() model = %q", res.Model)
	}
}

func TestFindWorkingModel(t *testing.T) {
	text := &stubText{name: "openai", failing: map[string]bool{"m1": true}}
	env := newTestEnv(func(d *Deps) { d.Text = text })

	probe, err := env.orch.FindWorkingModel(context.Background())
	if err != nil {
		t.Fatalf("FindWorkingModel() error = %v", err)
	}
	if !probe.Success || probe.Model != "m2" {
		t.Errorf("FindWorkingModel() = %+v", probe)
	}
	if diff := cmp.Diff([]string{"m1", "m2"}, probe.Tested); diff != "" {
		t.Errorf("tested mismatch (-want +got):\n%s", diff)
	}
	if text.opts[0].MaxTokens != probeMaxTokens || text.messages[0][0].Content != probePrompt {
		t.Errorf("probe request = %+v %+v", text.opts[0], text.messages[0])
	}

	text.failing = map[string]bool{"m1": true, "m2": true, "m3": true}
	probe, err = env.orch.FindWorkingModel(context.Background())
	if err != nil {
		t.Fatalf("FindWorkingModel() error = %v", err)
	}
	if probe.Success || len(probe.Errors) != 3 {
		t.Errorf("FindWorkingModel() = %+v, want three errors", probe)
	}
}

func TestTextNotConfigured(t *testing.T) {
	env := newTestEnv(nil)
	if _, err := env.orch.ListModels(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ListModels() error = %v, want ErrNotConfigured", err)
	}
}

// pngFetcher serves a real PNG for every URL.
type pngFetcher struct {
	data []byte
}

func (f *pngFetcher) Fetch(_ context.Context, url string) (*fetch.Image, error) {
	return &fetch.Image{URL: url, Data: f.data, MIMEType: "image/png"}, nil
}

func TestArchiveGenerated(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	bucket := &stubBucket{}
	store := storage.NewMemoryStorage()
	env := newTestEnv(func(d *Deps) {
		d.Fetcher = &pngFetcher{data: buf.Bytes()}
		d.Bucket = bucket
		d.History = store
		d.Archive = true
	})

	res, err := env.orch.GenerateCharacter(context.Background(), Request{SubjectURL: childURL})
	if err != nil {
		t.Fatalf("GenerateCharacter() error = %v", err)
	}
	env.orch.Wait()

	key := "generated/" + res.GenerationID + ".webp"
	if data, ok := bucket.uploaded[key]; !ok || !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatalf("archive %q not uploaded as webp (uploads: %d)", key, len(bucket.uploaded))
	}
	list, err := store.ListGenerations(context.Background(), 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListGenerations() = %v, %v", list, err)
	}
	if !strings.HasSuffix(list[0].ArchiveURL, key) {
		t.Errorf("ArchiveURL = %q", list[0].ArchiveURL)
	}
}
