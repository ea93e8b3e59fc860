package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storybook/storage"

	"github.com/google/go-cmp/cmp"
)

const templateURL = "https://cdn.example/template.png"

func TestReplaceChild(t *testing.T) {
	env := newTestEnv(nil)
	env.describer.respond = func([]string) (string, error) {
		return "A forest scene:\n\n the boy (age 1) sits   center", nil
	}

	res, err := env.orch.ReplaceChild(context.Background(), childURL, templateURL, Options{})
	if err != nil {
		t.Fatalf("ReplaceChild() error = %v", err)
	}
	call := env.describer.calls[0]
	if diff := cmp.Diff([]string{templateURL, childURL}, call.images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if call.prompt != replaceChildAnalysisPrompt || call.opts.MaxTokens != replaceMaxTokens {
		t.Errorf("describe call = %q, %d tokens", call.prompt, call.opts.MaxTokens)
	}
	if res.Prompt != "A forest scene: the boy (age 1) sits center" {
		t.Errorf("Prompt = %q", res.Prompt)
	}
	if res.GenerationMethod != "dalle" || !res.Success {
		t.Errorf("ReplaceChild() = %+v", res)
	}
}

func TestReplaceChild_FallbackStripsSpecialChars(t *testing.T) {
	env := newTestEnv(nil)
	env.primary.err = errors.New("dalle: server error")
	env.describer.respond = func([]string) (string, error) { return "the boy (age 1) & a bear", nil }

	res, err := env.orch.ReplaceChild(context.Background(), childURL, templateURL, Options{})
	if err != nil {
		t.Fatalf("ReplaceChild() error = %v", err)
	}
	if res.GenerationMethod != "pollinations" {
		t.Fatalf("GenerationMethod = %q", res.GenerationMethod)
	}
	if !strings.Contains(res.GeneratedImageURL, "/the%20boy%20age%201%20a%20bear?") {
		t.Errorf("GeneratedImageURL = %q", res.GeneratedImageURL)
	}
}

func TestReplaceChild_FetchFailure(t *testing.T) {
	env := newTestEnv(nil)
	env.fetcher.fail[templateURL] = true

	_, err := env.orch.ReplaceChild(context.Background(), childURL, templateURL, Options{})
	if err == nil || !strings.Contains(err.Error(), "failed to fetch template image") {
		t.Errorf("ReplaceChild() error = %v", err)
	}
}

func seedCatalog(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	for _, img := range []*storage.Image{
		{ID: 1, Name: "child", ImageURL: childURL},
		{ID: 2, Name: "forest", ImageURL: backgroundURL},
		{ID: 3, Name: "template", ImageURL: templateURL},
	} {
		if err := store.AddImage(context.Background(), img); err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}
	}
	return store
}

func TestCatalogVariants(t *testing.T) {
	store := seedCatalog(t)
	env := newTestEnv(func(d *Deps) { d.Catalog = store })
	ctx := context.Background()
	bg := int64(2)

	out, err := env.orch.GenerateBatchFromCatalog(ctx, []int64{3, 1, 99}, &bg, Options{})
	if err != nil {
		t.Fatalf("GenerateBatchFromCatalog() error = %v", err)
	}
	if len(out.Characters) != 2 || !out.BackgroundUsed {
		t.Errorf("GenerateBatchFromCatalog() = %+v", out)
	}
	var subjects []string
	for _, c := range env.describer.calls {
		subjects = append(subjects, c.images[1])
	}
	if diff := cmp.Diff([]string{childURL, templateURL}, subjects); diff != "" {
		t.Errorf("subjects not ordered by id (-want +got):\n%s", diff)
	}

	if _, err := env.orch.GenerateBatchFromCatalog(ctx, []int64{42}, nil, Options{}); !errors.Is(err, ErrNoCatalogImages) {
		t.Errorf("GenerateBatchFromCatalog(missing) error = %v, want ErrNoCatalogImages", err)
	}

	missing := int64(7)
	_, err = env.orch.GenerateFromCatalog(ctx, 1, &missing, Options{})
	var nf *ImageNotFoundError
	if !errors.As(err, &nf) || nf.ID != 7 {
		t.Errorf("GenerateFromCatalog(missing background) error = %v", err)
	}

	res, err := env.orch.ReplaceChildFromCatalog(ctx, 1, 3, Options{})
	if err != nil || !res.Success {
		t.Fatalf("ReplaceChildFromCatalog() = %+v, %v", res, err)
	}
}

func TestCatalogNotConfigured(t *testing.T) {
	env := newTestEnv(nil)
	if _, err := env.orch.GenerateFromCatalog(context.Background(), 1, nil, Options{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("GenerateFromCatalog() error = %v, want ErrNotConfigured", err)
	}
}
