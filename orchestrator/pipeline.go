package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storybook/imageproc"
	"storybook/lib/sl"
	"storybook/providers"
	"storybook/storage"
)

const archiveTimeout = 3 * time.Minute

// Request is one unit of character generation.
type Request struct {
	SubjectURL    string
	BackgroundURL string
	Options       Options
}

// Result is the outcome of one generation. GeneratedImageURL is set only on
// success.
type Result struct {
	Success           bool   `json:"success"`
	GeneratedImageURL string `json:"generatedImageUrl,omitempty"`
	Error             string `json:"error,omitempty"`
	GenerationMethod  string `json:"generationMethod,omitempty"`
	BackgroundUsed    bool   `json:"backgroundUsed"`
	// ImageURL is the subject image of a failed batch item.
	ImageURL     string `json:"imageUrl,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	GenerationID string `json:"generationId,omitempty"`
}

// GenerateCharacter runs the single image pipeline: fetch, describe, build
// the image prompt and synthesize. A background that cannot be fetched is
// dropped and the subject-only template is used.
func (o *Orchestrator) GenerateCharacter(ctx context.Context, req Request) (*Result, error) {
	if req.SubjectURL == "" {
		return nil, errors.New("subject image url is required")
	}
	log := o.log.With(slog.String("subject", req.SubjectURL))

	rec := o.startRecord(ctx, storage.KindCharacter, req.SubjectURL, req.BackgroundURL)
	res, err := o.generateCharacter(ctx, log, req)
	o.finishRecord(ctx, rec, res, err)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		res.GenerationID = rec.ID
	}
	return res, nil
}

func (o *Orchestrator) generateCharacter(ctx context.Context, log *slog.Logger, req Request) (*Result, error) {
	subject, err := o.loadImage(ctx, req.SubjectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch child photo: %w", err)
	}

	images := []providers.ImageInput{subject}
	if req.BackgroundURL != "" {
		background, err := o.loadImage(ctx, req.BackgroundURL)
		if err != nil {
			log.Warn("background unavailable, using subject only",
				slog.String("background", req.BackgroundURL),
				sl.Err(err),
			)
		} else {
			images = []providers.ImageInput{background, subject}
		}
	}

	mode := ModeFor(len(images) == 2)
	description, ds, err := o.describe(ctx, images, AnalysisPrompt(mode), req.Options, describeMaxTokens)
	if err != nil {
		return nil, err
	}
	log.Debug("description received", slog.String("mode", mode.String()), slog.Int("length", len(description)))

	prompt := ImagePrompt(styleFor(ds), mode, description, o.MaxDescription)
	url, method, err := o.chain.Synthesize(ctx, SynthesisRequest{Prompt: prompt})
	if err != nil {
		return nil, err
	}

	log.Info("character generated", slog.String("method", method), slog.String("mode", mode.String()))
	return &Result{
		Success:           true,
		GeneratedImageURL: url,
		GenerationMethod:  method,
		BackgroundUsed:    mode == WithBackground,
		Prompt:            prompt,
	}, nil
}

func (o *Orchestrator) startRecord(ctx context.Context, kind, source, background string) *storage.Generation {
	if o.history == nil {
		return nil
	}
	rec := storage.NewGeneration(kind, source, background)
	if err := o.history.CreateGeneration(ctx, rec); err != nil {
		o.log.Error("failed to record generation", slog.String("id", rec.ID), sl.Err(err))
		return nil
	}
	return rec
}

func (o *Orchestrator) finishRecord(ctx context.Context, rec *storage.Generation, res *Result, err error) {
	if rec == nil {
		return
	}
	if err != nil {
		rec.Status = storage.StatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = storage.StatusSuccess
		rec.Method = res.GenerationMethod
		rec.Prompt = res.Prompt
		rec.OutputURL = res.GeneratedImageURL
	}
	if uerr := o.history.UpdateGeneration(context.WithoutCancel(ctx), rec); uerr != nil {
		o.log.Error("failed to update generation", slog.String("id", rec.ID), sl.Err(uerr))
		return
	}
	if err == nil && o.archive {
		o.archiveAsync(*rec)
	}
}

// archiveAsync stores a WebP copy of the generated image in the bucket.
// Failures are logged only.
func (o *Orchestrator) archiveAsync(rec storage.Generation) {
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		log := o.log.With(slog.String("id", rec.ID))
		img, err := o.fetcher.Fetch(ctx, rec.OutputURL)
		if err != nil {
			log.Warn("archive download failed", sl.Err(err))
			return
		}
		data, err := imageproc.EncodeWebP(img.Data)
		if err != nil {
			log.Warn("archive encoding failed", sl.Err(err))
			return
		}
		url, err := o.bucket.Upload(ctx, "generated/"+rec.ID+".webp", data, "image/webp")
		if err != nil {
			log.Warn("archive upload failed", sl.Err(err))
			return
		}
		rec.ArchiveURL = url
		if err := o.history.UpdateGeneration(ctx, &rec); err != nil {
			log.Warn("failed to store archive url", sl.Err(err))
			return
		}
		log.Info("generated image archived", slog.String("url", url))
	}()
}

// Generations returns the newest history records.
func (o *Orchestrator) Generations(ctx context.Context, limit int) ([]storage.Generation, error) {
	if o.history == nil {
		return nil, fmt.Errorf("generation history: %w", ErrNotConfigured)
	}
	return o.history.ListGenerations(ctx, limit)
}
