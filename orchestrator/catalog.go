package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"storybook/storage"

	"golang.org/x/sync/errgroup"
)

func (o *Orchestrator) catalogImage(ctx context.Context, id int64) (*storage.Image, error) {
	if o.catalog == nil {
		return nil, fmt.Errorf("image catalog: %w", ErrNotConfigured)
	}
	img, err := o.catalog.GetImageByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &ImageNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("image catalog: %w", err)
	}
	return img, nil
}

// GenerateBatchFromCatalog resolves catalog IDs, ordered by id, and runs a
// batch over their URLs. backgroundID is optional.
func (o *Orchestrator) GenerateBatchFromCatalog(ctx context.Context, ids []int64, backgroundID *int64, opts Options) (*BatchOutcome, error) {
	if len(ids) == 0 {
		return nil, ErrNoImages
	}
	if o.catalog == nil {
		return nil, fmt.Errorf("image catalog: %w", ErrNotConfigured)
	}

	var backgroundURL string
	if backgroundID != nil {
		bg, err := o.catalogImage(ctx, *backgroundID)
		if err != nil {
			return nil, err
		}
		backgroundURL = bg.ImageURL
	}

	images, err := o.catalog.GetImagesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("image catalog: %w", err)
	}
	if len(images) == 0 {
		return nil, ErrNoCatalogImages
	}

	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = img.ImageURL
	}
	return o.GenerateBatch(ctx, urls, backgroundURL, opts)
}

// GenerateFromCatalog runs the single image pipeline for catalog images.
func (o *Orchestrator) GenerateFromCatalog(ctx context.Context, id int64, backgroundID *int64, opts Options) (*Result, error) {
	subject, err := o.catalogImage(ctx, id)
	if err != nil {
		return nil, err
	}
	req := Request{SubjectURL: subject.ImageURL, Options: opts}
	if backgroundID != nil {
		bg, err := o.catalogImage(ctx, *backgroundID)
		if err != nil {
			return nil, err
		}
		req.BackgroundURL = bg.ImageURL
	}
	return o.GenerateCharacter(ctx, req)
}

// ReplaceChildFromCatalog looks up both catalog images concurrently and
// runs ReplaceChild.
func (o *Orchestrator) ReplaceChildFromCatalog(ctx context.Context, childID, templateID int64, opts Options) (*Result, error) {
	var child, template *storage.Image
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		child, err = o.catalogImage(gctx, childID)
		return err
	})
	g.Go(func() error {
		var err error
		template, err = o.catalogImage(gctx, templateID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return o.ReplaceChild(ctx, child.ImageURL, template.ImageURL, opts)
}
