package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"storybook/imagehost"
	"storybook/imageproc"
	"storybook/lib/sl"
	"storybook/storage"

	"github.com/google/uuid"
)

const (
	// MaxUploadSize bounds one uploaded catalog image.
	MaxUploadSize = 10 << 20

	uploadFolder             = "admin-images"
	DefaultBackgroundsFolder = "backgrounds"
)

var uploadExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// InvalidUploadError rejects an upload that is not an accepted image.
type InvalidUploadError struct {
	Reason string
}

func (e *InvalidUploadError) Error() string {
	return e.Reason
}

const invalidFileType = "Only image files are allowed! (JPEG, JPG, PNG, GIF, WEBP)"

// Upload is a new catalog image.
type Upload struct {
	Name        string
	Description string
	Filename    string
	Data        []byte
}

// ListImages returns the newest catalog images first.
func (o *Orchestrator) ListImages(ctx context.Context, limit int) ([]storage.Image, error) {
	if o.catalog == nil {
		return nil, fmt.Errorf("image catalog: %w", ErrNotConfigured)
	}
	images, err := o.catalog.ListImages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("image catalog: %w", err)
	}
	if images == nil {
		images = []storage.Image{}
	}
	return images, nil
}

func (o *Orchestrator) GetImage(ctx context.Context, id int64) (*storage.Image, error) {
	return o.catalogImage(ctx, id)
}

// AddImage stores an uploaded picture in the bucket and adds it to the
// catalog. JPEG uploads are re-encoded upright without metadata.
func (o *Orchestrator) AddImage(ctx context.Context, up Upload) (*storage.Image, error) {
	if o.catalog == nil {
		return nil, fmt.Errorf("image catalog: %w", ErrNotConfigured)
	}
	if o.bucket == nil {
		return nil, fmt.Errorf("object storage: %w", ErrNotConfigured)
	}
	if len(up.Data) > MaxUploadSize {
		return nil, &InvalidUploadError{Reason: "File too large. Maximum size is 10MB per file."}
	}

	ext := strings.ToLower(path.Ext(up.Filename))
	contentType := http.DetectContentType(up.Data)
	if !uploadExtensions[ext] || !strings.HasPrefix(contentType, "image/") {
		return nil, &InvalidUploadError{Reason: invalidFileType}
	}

	data := up.Data
	if contentType == "image/jpeg" {
		out, _, err := imageproc.Normalize(up.Data, o.MaxImageDimension)
		if err != nil {
			return nil, &InvalidUploadError{Reason: invalidFileType}
		}
		data, ext = out, ".jpg"
	}

	objectPath := fmt.Sprintf("%s/%d-%s%s", uploadFolder, time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	publicURL, err := o.bucket.Upload(ctx, objectPath, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("uploading image: %w", err)
	}

	img := &storage.Image{
		Name:        up.Name,
		Description: up.Description,
		ImageURL:    publicURL,
	}
	if err := o.catalog.AddImage(ctx, img); err != nil {
		if derr := o.bucket.Delete(ctx, objectPath); derr != nil {
			o.log.Warn("failed to remove orphaned upload", slog.String("path", objectPath), sl.Err(derr))
		}
		return nil, fmt.Errorf("image catalog: %w", err)
	}

	o.log.Info("catalog image added",
		slog.Int64("id", img.ID),
		slog.String("path", objectPath),
		slog.Int("size", len(data)),
	)
	return img, nil
}

// DeleteImage removes a catalog image and, when it lives in the bucket, its
// stored object. A failed object removal is logged and does not block the
// catalog deletion.
func (o *Orchestrator) DeleteImage(ctx context.Context, id int64) (*storage.Image, error) {
	img, err := o.catalogImage(ctx, id)
	if err != nil {
		return nil, err
	}

	if objectPath, ok := o.bucketPath(img.ImageURL); ok {
		if err := o.bucket.Delete(ctx, objectPath); err != nil {
			o.log.Warn("could not delete stored object", slog.String("path", objectPath), sl.Err(err))
		}
	}

	err = o.catalog.DeleteImage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &ImageNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("image catalog: %w", err)
	}
	o.log.Info("catalog image deleted", slog.Int64("id", id))
	return img, nil
}

// ListBackgrounds lists the bucket images usable as backgrounds.
func (o *Orchestrator) ListBackgrounds(ctx context.Context, folder string, limit int) ([]imagehost.Object, error) {
	if o.bucket == nil {
		return nil, fmt.Errorf("object storage: %w", ErrNotConfigured)
	}
	if folder == "" {
		folder = DefaultBackgroundsFolder
	}
	objects, err := o.bucket.ListImages(ctx, folder, limit)
	if err != nil {
		return nil, fmt.Errorf("listing backgrounds: %w", err)
	}
	if objects == nil {
		objects = []imagehost.Object{}
	}
	return objects, nil
}

// bucketPath returns the object path of a public bucket URL.
func (o *Orchestrator) bucketPath(publicURL string) (string, bool) {
	if o.bucket == nil {
		return "", false
	}
	rest, ok := strings.CutPrefix(publicURL, o.bucket.PublicURL(""))
	if !ok || rest == "" {
		return "", false
	}
	p, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return p, true
}
