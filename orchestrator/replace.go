package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storybook/providers"
	"storybook/storage"

	"golang.org/x/sync/errgroup"
)

// ReplaceChild redraws the template illustration with the child from the
// photo in place of the original character.
func (o *Orchestrator) ReplaceChild(ctx context.Context, childURL, templateURL string, opts Options) (*Result, error) {
	if childURL == "" || templateURL == "" {
		return nil, errors.New("child and template image urls are required")
	}

	rec := o.startRecord(ctx, storage.KindReplace, childURL, templateURL)
	res, err := o.replaceChild(ctx, childURL, templateURL, opts)
	o.finishRecord(ctx, rec, res, err)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		res.GenerationID = rec.ID
	}
	return res, nil
}

func (o *Orchestrator) replaceChild(ctx context.Context, childURL, templateURL string, opts Options) (*Result, error) {
	var child, template providers.ImageInput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if child, err = o.loadImage(gctx, childURL); err != nil {
			return fmt.Errorf("failed to fetch child image: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if template, err = o.loadImage(gctx, templateURL); err != nil {
			return fmt.Errorf("failed to fetch template image: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	description, _, err := o.describe(ctx, []providers.ImageInput{template, child}, replaceChildAnalysisPrompt, opts, replaceMaxTokens)
	if err != nil {
		return nil, err
	}

	prompt := ReplacementPrompt(description, o.MaxPrimaryPrompt)
	url, method, err := o.chain.Synthesize(ctx, SynthesisRequest{
		Prompt:         prompt,
		FallbackPrompt: providers.StripSpecialChars(prompt),
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("child replaced in template", slog.String("method", method), slog.String("template", templateURL))
	return &Result{
		Success:           true,
		GeneratedImageURL: url,
		GenerationMethod:  method,
		BackgroundUsed:    true,
		Prompt:            prompt,
	}, nil
}
