package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storybook/imagehost"
	"storybook/lib/sl"
	"storybook/providers"
)

const (
	analyzeMaxTokens = 500
	analyzeListLimit = 100
)

// AnalyzeOptions tunes bucket image analysis.
type AnalyzeOptions struct {
	// Folder limits the listing to one folder; empty lists every folder.
	Folder    string
	Model     string
	Prompt    string
	Limit     int
	MaxTokens int
	// Delay overrides BatchDelay between images when set.
	Delay *time.Duration
}

// AnalyzedImage is the analysis of one bucket image.
type AnalyzedImage struct {
	imagehost.Object
	Analysis string `json:"analysis,omitempty"`
	Error    string `json:"error,omitempty"`
	Success  bool   `json:"success"`
}

// AnalysisReport summarizes a bucket analysis run.
type AnalysisReport struct {
	TotalImages   int             `json:"totalImages"`
	AnalyzedCount int             `json:"analyzedCount"`
	FailedCount   int             `json:"failedCount"`
	Images        []AnalyzedImage `json:"images"`
}

// ImageAnalysis is the analysis of a single bucket object.
type ImageAnalysis struct {
	Path     string `json:"path"`
	URL      string `json:"url"`
	Analysis string `json:"analysis"`
	Model    string `json:"model"`
}

// AnalyzeBucketImages describes every listed bucket image in sequence.
// Per image failures are recorded in the report.
func (o *Orchestrator) AnalyzeBucketImages(ctx context.Context, opts AnalyzeOptions) (*AnalysisReport, error) {
	if o.bucket == nil {
		return nil, fmt.Errorf("object storage: %w", ErrNotConfigured)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = analyzeListLimit
	}
	var (
		objects []imagehost.Object
		err     error
	)
	if opts.Folder != "" {
		objects, err = o.bucket.ListImages(ctx, opts.Folder, limit)
	} else {
		objects, err = o.bucket.ListAllImages(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing bucket images: %w", err)
	}
	if len(objects) == 0 {
		return nil, ErrNoBucketImages
	}

	delay := o.BatchDelay
	if opts.Delay != nil {
		delay = *opts.Delay
	}

	report := &AnalysisReport{TotalImages: len(objects), Images: make([]AnalyzedImage, 0, len(objects))}
	for i, obj := range objects {
		if i > 0 {
			if err := o.Sleep(ctx, delay); err != nil {
				for _, rest := range objects[i:] {
					report.Images = append(report.Images, AnalyzedImage{Object: rest, Error: err.Error()})
					report.FailedCount++
				}
				break
			}
		}

		analysis, _, err := o.analyzeImage(ctx, obj.URL, opts.Model, opts.Prompt, opts.MaxTokens)
		if err != nil {
			o.log.Warn("image analysis failed", slog.String("path", obj.Path), sl.Err(err))
			report.Images = append(report.Images, AnalyzedImage{Object: obj, Error: err.Error()})
			report.FailedCount++
			continue
		}
		report.Images = append(report.Images, AnalyzedImage{Object: obj, Analysis: analysis, Success: true})
		report.AnalyzedCount++
	}
	return report, nil
}

// AnalyzeBucketImage describes the bucket object at objectPath.
func (o *Orchestrator) AnalyzeBucketImage(ctx context.Context, objectPath, model, prompt string, maxTokens int) (*ImageAnalysis, error) {
	if o.bucket == nil {
		return nil, fmt.Errorf("object storage: %w", ErrNotConfigured)
	}
	url := o.bucket.PublicURL(objectPath)
	analysis, usedModel, err := o.analyzeImage(ctx, url, model, prompt, maxTokens)
	if err != nil {
		return nil, err
	}
	return &ImageAnalysis{Path: objectPath, URL: url, Analysis: analysis, Model: usedModel}, nil
}

func (o *Orchestrator) analyzeImage(ctx context.Context, url, model, prompt string, maxTokens int) (string, string, error) {
	img, err := o.loadImage(ctx, url)
	if err != nil {
		return "", "", err
	}
	if prompt == "" {
		prompt = DefaultImageAnalysisPrompt
	}
	if maxTokens <= 0 {
		maxTokens = analyzeMaxTokens
	}
	text, ds, err := o.describe(ctx, []providers.ImageInput{img}, prompt, Options{Model: model}, maxTokens)
	if err != nil {
		return "", "", err
	}
	if model == "" {
		model = ds.GetName()
	}
	return text, model, nil
}
