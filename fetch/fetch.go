// Package fetch downloads source images over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"storybook/lib/sl"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxBytes bounds a single download.
const DefaultMaxBytes = 20 << 20

// Image is a downloaded image.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// FetchError reports an image that could not be downloaded or is not an image.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("failed to fetch image %s: %d %s", e.URL, e.StatusCode, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("failed to fetch image %s: %s: %v", e.URL, e.Reason, e.Err)
	default:
		return fmt.Sprintf("failed to fetch image %s: %s", e.URL, e.Reason)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher downloads images, caching them for a short time and collapsing
// concurrent requests for the same URL into one download.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64
	cache    *cache.Cache
	group    singleflight.Group
	log      *slog.Logger
}

// NewFetcher creates a Fetcher. A zero ttl disables caching.
func NewFetcher(ttl, cleanup, timeout time.Duration, log *slog.Logger) *Fetcher {
	f := &Fetcher{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: DefaultMaxBytes,
		log:      log.With(sl.Module("fetch")),
	}
	if ttl > 0 {
		f.cache = cache.New(ttl, cleanup)
	}
	return f
}

// Fetch returns the image at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	if f.cache != nil {
		if v, ok := f.cache.Get(rawURL); ok {
			if img, ok := v.(*Image); ok {
				f.log.Debug("image cache hit", slog.String("url", rawURL))
				return img, nil
			}
		}
	}

	// Shared downloads outlive a canceled caller; the client timeout bounds them.
	dctx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(rawURL, func() (interface{}, error) {
		img, err := f.download(dctx, rawURL)
		if err != nil {
			return nil, err
		}
		if f.cache != nil {
			f.cache.SetDefault(rawURL, img)
		}
		return img, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		f.log.Debug("shared in-flight download", slog.String("url", rawURL))
	}

	img, ok := res.Val.(*Image)
	if !ok {
		return nil, fmt.Errorf("unexpected return type from singleflight: %T", res.Val)
	}
	return img, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "invalid url", Err: err}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "failed to read body", Err: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &FetchError{URL: rawURL, Reason: fmt.Sprintf("image larger than %d bytes", maxBytes)}
	}

	mimeType := imageMIMEType(resp.Header.Get("Content-Type"), data)
	if mimeType == "" {
		return nil, &FetchError{URL: rawURL, Reason: "not an image: " + resp.Header.Get("Content-Type")}
	}

	f.log.Debug("image fetched", slog.String("url", rawURL), slog.Int("size", len(data)), slog.String("mime", mimeType))
	return &Image{URL: rawURL, Data: data, MIMEType: mimeType}, nil
}

// imageMIMEType returns the image media type of a response, sniffing the body
// when the header is missing or generic. It returns "" for non-images.
func imageMIMEType(header string, data []byte) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	if header != "" && err == nil && mediaType != "application/octet-stream" && mediaType != "binary/octet-stream" {
		return ""
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}
