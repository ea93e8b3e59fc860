// Package orchestrator drives character generation: it fetches the source
// images, asks a vision model for a description, turns the description into
// an image prompt and synthesizes the illustration through a fallback chain.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storybook/fetch"
	"storybook/imagehost"
	"storybook/imageproc"
	"storybook/lib/sl"
	"storybook/providers"
	"storybook/resilience"
	"storybook/storage"
)

const (
	DefaultBatchDelay       = 2 * time.Second
	defaultMaxDescription   = 800
	defaultMaxPrimaryPrompt = 1000
	describeMaxTokens       = 1000
	replaceMaxTokens        = 2000
)

var (
	// ErrNoImages is returned when a batch has no subject images.
	ErrNoImages = errors.New("no images to process")
	// ErrNoCatalogImages is returned when none of the requested catalog IDs exist.
	ErrNoCatalogImages = errors.New("no catalog images found for the provided ids")
	// ErrNoBucketImages is returned when the bucket listing has no images.
	ErrNoBucketImages = errors.New("no images found in bucket")
	// ErrNotConfigured is returned when an optional collaborator is missing.
	ErrNotConfigured = errors.New("not configured")
)

// ImageNotFoundError reports a catalog ID that does not exist.
type ImageNotFoundError struct {
	ID int64
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("image with id %d not found", e.ID)
}

// ImageFetcher downloads source images.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Image, error)
}

// Bucket is the object storage holding catalog uploads, analysis listings
// and archived generations.
type Bucket interface {
	ListImages(ctx context.Context, folder string, limit int) ([]imagehost.Object, error)
	ListAllImages(ctx context.Context, limit int) ([]imagehost.Object, error)
	PublicURL(objectPath string) string
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// Options are the per-request model settings.
type Options struct {
	// Model is a bare model name for the default describer or
	// "provider/model" to pick another registered describer.
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

// Deps are the collaborators of an Orchestrator. Describer, Fallback,
// Fetcher and Retrier are required.
type Deps struct {
	Describer providers.Describer
	// Describers are additional describers selectable by name.
	Describers []providers.Describer
	Primary    providers.Synthesizer
	Fallback   providers.Synthesizer
	Text       providers.TextGenerator
	// TextDefaultModel is used when Text is not OpenAI and no model is given.
	TextDefaultModel string
	Fetcher          ImageFetcher
	Retrier          *resilience.Retrier
	Catalog          storage.ImageCatalog
	History          storage.GenerationLog
	Bucket           Bucket
	// Archive uploads a WebP copy of every generated image to Bucket.
	Archive bool
}

type Orchestrator struct {
	describer        providers.Describer
	describers       map[string]providers.Describer
	chain            *FallbackChain
	text             providers.TextGenerator
	textDefaultModel string
	fetcher          ImageFetcher
	retrier          *resilience.Retrier
	catalog          storage.ImageCatalog
	history          storage.GenerationLog
	bucket           Bucket
	archive          bool

	BatchDelay        time.Duration
	MaxDescription    int
	MaxPrimaryPrompt  int
	MaxImageDimension int
	// Sleep waits between batch items; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	background sync.WaitGroup
	log        *slog.Logger
}

func New(d Deps, log *slog.Logger) *Orchestrator {
	log = log.With(sl.Module("orchestrator"))
	o := &Orchestrator{
		describer:         d.Describer,
		describers:        make(map[string]providers.Describer),
		chain:             NewFallbackChain(d.Primary, d.Fallback, d.Retrier, log),
		text:              d.Text,
		textDefaultModel:  d.TextDefaultModel,
		fetcher:           d.Fetcher,
		retrier:           d.Retrier,
		catalog:           d.Catalog,
		history:           d.History,
		bucket:            d.Bucket,
		archive:           d.Archive && d.Bucket != nil,
		BatchDelay:        DefaultBatchDelay,
		MaxDescription:    defaultMaxDescription,
		MaxPrimaryPrompt:  defaultMaxPrimaryPrompt,
		MaxImageDimension: imageproc.DefaultMaxDimension,
		Sleep:             sleepContext,
		log:               log,
	}
	for _, ds := range append([]providers.Describer{d.Describer}, d.Describers...) {
		if ds != nil {
			o.describers[ds.GetName()] = ds
		}
	}
	return o
}

// Wait blocks until background archival jobs finish.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// resolveDescriber picks the describer and model for a requested model name.
func (o *Orchestrator) resolveDescriber(model string) (providers.Describer, string) {
	if provider, name, err := providers.ParseModelName(model); err == nil {
		if ds, ok := o.describers[provider]; ok {
			return ds, name
		}
		o.log.Warn("unknown describe provider, using default",
			slog.String("provider", provider),
			slog.String("default", o.describer.GetName()),
		)
		return o.describer, name
	}
	return o.describer, model
}

// styleFor returns the image prompt style matching a describer.
func styleFor(ds providers.Describer) PromptStyle {
	if ds.GetName() == "gemini" {
		return StyleDirect
	}
	return StyleIllustration
}

// describe runs one vision call through the retrier and returns the text
// together with the describer that produced it.
func (o *Orchestrator) describe(ctx context.Context, images []providers.ImageInput, prompt string, opts Options, maxTokens int) (string, providers.Describer, error) {
	ds, model := o.resolveDescriber(opts.Model)
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	dopts := providers.DescribeOptions{Model: model, MaxTokens: maxTokens, Temperature: opts.Temperature}

	o.log.Debug("calling provider",
		slog.String("provider", ds.GetName()),
		slog.String("model", model),
		slog.Int("images", len(images)),
	)
	text, err := resilience.Do(ctx, o.retrier, ds.GetName()+".describe", func(ctx context.Context) (string, error) {
		return ds.Describe(ctx, images, prompt, dopts)
	})
	if err != nil {
		return "", ds, err
	}
	return strings.TrimSpace(text), ds, nil
}

// loadImage downloads url and prepares it for a vision model. Images that
// cannot be decoded are passed through unchanged.
func (o *Orchestrator) loadImage(ctx context.Context, url string) (providers.ImageInput, error) {
	img, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return providers.ImageInput{}, err
	}
	data, info, err := imageproc.Normalize(img.Data, o.MaxImageDimension)
	if err != nil {
		o.log.Warn("image normalization failed, sending original", slog.String("url", url), sl.Err(err))
		return providers.ImageInput{Data: img.Data, MIMEType: img.MIMEType}, nil
	}
	o.log.Debug("image prepared",
		slog.String("url", url),
		slog.String("format", info.Format),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
	)
	return providers.ImageInput{Data: data, MIMEType: "image/jpeg"}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
