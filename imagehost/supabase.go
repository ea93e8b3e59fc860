package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"storybook/lib/sl"
)

const defaultListLimit = 100

// imageExtensions are the object suffixes treated as images when listing.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// BucketClient talks to the Supabase Storage REST API for one bucket.
type BucketClient struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	Client     *http.Client
	log        *slog.Logger
}

// NewBucketClient creates a client for bucket at the project URL baseURL.
func NewBucketClient(baseURL, serviceKey, bucket string, log *slog.Logger) *BucketClient {
	return &BucketClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		Bucket:     bucket,
		Client:     &http.Client{Timeout: 60 * time.Second},
		log:        log.With(sl.Module("imagehost")),
	}
}

// Object is one stored image.
type Object struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Folder    string    `json:"folder,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// listEntry matches one element of the list endpoint response. Folders have
// a null id.
type listEntry struct {
	ID        *string   `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  struct {
		Size     int64  `json:"size"`
		MimeType string `json:"mimetype"`
	} `json:"metadata"`
}

type listRequest struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	SortBy struct {
		Column string `json:"column"`
		Order  string `json:"order"`
	} `json:"sortBy"`
}

// PublicURL returns the public address of objectPath.
func (c *BucketClient) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.BaseURL, c.Bucket, escapePath(objectPath))
}

// Upload stores data at objectPath, replacing any existing object, and
// returns its public URL.
func (c *BucketClient) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.BaseURL, c.Bucket, escapePath(objectPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "true")
	c.authorize(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("storage API returned non-200 status: %d, body: %s", resp.StatusCode, string(body))
	}

	c.log.Debug("object uploaded", slog.String("path", objectPath), slog.Int("size", len(data)))
	return c.PublicURL(objectPath), nil
}

// Delete removes objectPath from the bucket.
func (c *BucketClient) Delete(ctx context.Context, objectPath string) error {
	payload, err := json.Marshal(map[string][]string{"prefixes": {objectPath}})
	if err != nil {
		return fmt.Errorf("failed to marshal delete request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", c.BaseURL, c.Bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storage API returned non-200 status for delete: %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// ListImages returns the image objects directly inside folder, newest first.
func (c *BucketClient) ListImages(ctx context.Context, folder string, limit int) ([]Object, error) {
	entries, err := c.list(ctx, folder, limit, "created_at", "desc")
	if err != nil {
		return nil, err
	}
	images := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.ID == nil || !isImage(e.Name) {
			continue
		}
		images = append(images, c.object(folder, e))
	}
	return images, nil
}

// ListAllImages returns the images at the bucket root and in every top level
// folder, with at most limit images per folder.
func (c *BucketClient) ListAllImages(ctx context.Context, limit int) ([]Object, error) {
	entries, err := c.list(ctx, "", 1000, "name", "asc")
	if err != nil {
		return nil, err
	}

	var images []Object
	for _, e := range entries {
		if e.ID != nil {
			if isImage(e.Name) {
				images = append(images, c.object("", e))
			}
			continue
		}
		folderImages, err := c.ListImages(ctx, e.Name, limit)
		if err != nil {
			c.log.Warn("failed to list folder", slog.String("folder", e.Name), sl.Err(err))
			continue
		}
		images = append(images, folderImages...)
	}
	return images, nil
}

func (c *BucketClient) list(ctx context.Context, prefix string, limit int, column, order string) ([]listEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	body := listRequest{Prefix: prefix, Limit: limit}
	body.SortBy.Column = column
	body.SortBy.Order = order

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/list/%s", c.BaseURL, c.Bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute list request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("storage API returned non-200 status for list: %d, body: %s", resp.StatusCode, string(b))
	}

	var entries []listEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	return entries, nil
}

func (c *BucketClient) object(folder string, e listEntry) Object {
	p := e.Name
	if folder != "" {
		p = path.Join(folder, e.Name)
	}
	return Object{
		Name:      e.Name,
		Path:      p,
		URL:       c.PublicURL(p),
		Folder:    folder,
		Size:      e.Metadata.Size,
		CreatedAt: e.CreatedAt,
	}
}

func (c *BucketClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	req.Header.Set("apikey", c.ServiceKey)
}

func isImage(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// escapePath percent-encodes each segment of an object path.
func escapePath(p string) string {
	segments := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
