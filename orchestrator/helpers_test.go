package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"storybook/fetch"
	"storybook/providers"
	"storybook/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// instantTimer fires immediately.
type instantTimer struct {
	c chan time.Time
}

func (t *instantTimer) Start(time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.c
}

func testRetrier() *resilience.Retrier {
	r := resilience.NewRetrier(3, time.Second, testLogger())
	r.Timer = &instantTimer{}
	return r
}

// stubFetcher serves "image:<url>" bytes for every URL not listed in fail.
// The bytes are not a decodable image, so they reach the describer verbatim.
type stubFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*fetch.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.fail[url] {
		return nil, &fetch.FetchError{URL: url, StatusCode: http.StatusNotFound, Reason: "Not Found"}
	}
	return &fetch.Image{URL: url, Data: []byte("image:" + url), MIMEType: "image/png"}, nil
}

type describeCall struct {
	images []string
	prompt string
	opts   providers.DescribeOptions
}

// stubDescriber answers with respond, or with "a smiling child" when nil.
type stubDescriber struct {
	name    string
	respond func(images []string) (string, error)
	calls   []describeCall
}

func (d *stubDescriber) GetName() string {
	if d.name == "" {
		return "openai"
	}
	return d.name
}

func (d *stubDescriber) Describe(_ context.Context, images []providers.ImageInput, prompt string, opts providers.DescribeOptions) (string, error) {
	var names []string
	for _, img := range images {
		names = append(names, strings.TrimPrefix(string(img.Data), "image:"))
	}
	d.calls = append(d.calls, describeCall{images: names, prompt: prompt, opts: opts})
	if d.respond != nil {
		return d.respond(names)
	}
	return "a smiling child", nil
}

type stubSynthesizer struct {
	name    string
	err     error
	prompts []string
}

func (s *stubSynthesizer) GetName() string {
	return s.name
}

func (s *stubSynthesizer) SynthesizeImage(_ context.Context, prompt string, _ providers.SynthesisParams) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return "https://images.example/" + s.name + ".png", nil
}

type testEnv struct {
	orch      *Orchestrator
	fetcher   *stubFetcher
	describer *stubDescriber
	primary   *stubSynthesizer
	sleeps    []time.Duration
}

func newTestEnv(mutate func(*Deps)) *testEnv {
	env := &testEnv{
		fetcher:   &stubFetcher{fail: map[string]bool{}},
		describer: &stubDescriber{},
		primary:   &stubSynthesizer{name: "dalle"},
	}
	d := Deps{
		Describer: env.describer,
		Primary:   env.primary,
		Fallback:  providers.NewPollinationsAIProvider(testLogger()),
		Fetcher:   env.fetcher,
		Retrier:   testRetrier(),
	}
	if mutate != nil {
		mutate(&d)
	}
	env.orch = New(d, testLogger())
	env.orch.Sleep = func(_ context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return nil
	}
	return env
}
