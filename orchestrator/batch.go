package orchestrator

import (
	"context"
	"log/slog"

	"storybook/lib/sl"
	"storybook/resilience"
)

// BatchOutcome holds one result per subject image, in input order.
type BatchOutcome struct {
	Characters     []Result `json:"characters"`
	BackgroundUsed bool     `json:"backgroundUsed"`
}

// Succeeded counts the successful items.
func (b *BatchOutcome) Succeeded() int {
	n := 0
	for _, c := range b.Characters {
		if c.Success {
			n++
		}
	}
	return n
}

// GenerateBatch processes subjectURLs strictly in order, waiting BatchDelay
// before every item after the first. A failed item is recorded and never
// stops the batch.
func (o *Orchestrator) GenerateBatch(ctx context.Context, subjectURLs []string, backgroundURL string, opts Options) (*BatchOutcome, error) {
	if len(subjectURLs) == 0 {
		return nil, ErrNoImages
	}

	log := o.log.With(slog.Int("batch_size", len(subjectURLs)))
	log.Info("generating characters", slog.Bool("background", backgroundURL != ""))

	out := &BatchOutcome{
		Characters:     make([]Result, 0, len(subjectURLs)),
		BackgroundUsed: backgroundURL != "",
	}
	for i, url := range subjectURLs {
		if i > 0 {
			if err := o.Sleep(ctx, o.BatchDelay); err != nil {
				for _, rest := range subjectURLs[i:] {
					out.Characters = append(out.Characters, failedResult(rest, err))
				}
				log.Warn("batch interrupted", slog.Int("item", i+1), sl.Err(err))
				break
			}
		}

		res, err := o.GenerateCharacter(ctx, Request{SubjectURL: url, BackgroundURL: backgroundURL, Options: opts})
		if err != nil {
			log.Warn("character generation failed",
				slog.Int("item", i+1),
				slog.String("class", resilience.ClassifyError(err).String()),
				sl.Err(err),
			)
			out.Characters = append(out.Characters, failedResult(url, err))
			continue
		}
		out.Characters = append(out.Characters, *res)
	}

	log.Info("batch finished", slog.Int("succeeded", out.Succeeded()))
	return out, nil
}

func failedResult(url string, err error) Result {
	return Result{
		Success:  false,
		Error:    resilience.UserMessage(err),
		ImageURL: url,
	}
}
