package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Image is a catalog entry pointing at a stored picture.
type Image struct {
	ID          int64     `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description,omitempty" bson:"description"`
	ImageURL    string    `json:"image_url" bson:"image_url"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

type GenerationStatus string

const (
	StatusProcessing GenerationStatus = "processing"
	StatusSuccess    GenerationStatus = "success"
	StatusFailed     GenerationStatus = "failed"
)

// Generation kinds.
const (
	KindCharacter = "character"
	KindReplace   = "replace_child"
)

// Generation is the history record of one image generation.
type Generation struct {
	ID            string           `json:"id" bson:"_id"`
	Kind          string           `json:"kind" bson:"kind"`
	SourceURL     string           `json:"sourceUrl" bson:"source_url"`
	BackgroundURL string           `json:"backgroundUrl,omitempty" bson:"background_url"`
	Status        GenerationStatus `json:"status" bson:"status"`
	Method        string           `json:"generationMethod,omitempty" bson:"method"`
	Prompt        string           `json:"prompt,omitempty" bson:"prompt"`
	OutputURL     string           `json:"generatedImageUrl,omitempty" bson:"output_url"`
	ArchiveURL    string           `json:"archiveUrl,omitempty" bson:"archive_url"`
	Error         string           `json:"error,omitempty" bson:"error"`
	CreatedAt     time.Time        `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time        `json:"updatedAt" bson:"updated_at"`
}

// NewGeneration returns a processing record with a fresh ID.
func NewGeneration(kind, sourceURL, backgroundURL string) *Generation {
	now := time.Now().UTC()
	return &Generation{
		ID:            uuid.NewString(),
		Kind:          kind,
		SourceURL:     sourceURL,
		BackgroundURL: backgroundURL,
		Status:        StatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ImageCatalog keeps the uploaded images that catalog IDs refer to.
type ImageCatalog interface {
	// GetImageByID returns ErrNotFound when id does not exist.
	GetImageByID(ctx context.Context, id int64) (*Image, error)
	// GetImagesByIDs returns the existing images among ids ordered by id.
	GetImagesByIDs(ctx context.Context, ids []int64) ([]Image, error)
	ListImages(ctx context.Context, limit int) ([]Image, error)
	// AddImage stores img and assigns its ID when zero.
	AddImage(ctx context.Context, img *Image) error
	// DeleteImage returns ErrNotFound when id does not exist.
	DeleteImage(ctx context.Context, id int64) error
}

// GenerationLog keeps the history of generation calls.
type GenerationLog interface {
	CreateGeneration(ctx context.Context, g *Generation) error
	UpdateGeneration(ctx context.Context, g *Generation) error
	// ListGenerations returns the newest records first.
	ListGenerations(ctx context.Context, limit int) ([]Generation, error)
}

type Store interface {
	ImageCatalog
	GenerationLog
	Close() error
}

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
