package fetch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newTestFetcher(ttl time.Duration) *Fetcher {
	return NewFetcher(ttl, time.Minute, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetch(t *testing.T) {
	data := pngBytes(t)
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/photo.png", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	})
	mux.HandleFunc("/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(time.Minute)
	ctx := context.Background()

	t.Run("image is cached", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			img, err := f.Fetch(ctx, srv.URL+"/photo.png")
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if img.MIMEType != "image/png" || !bytes.Equal(img.Data, data) {
				t.Errorf("Fetch() = %s, %d bytes", img.MIMEType, len(img.Data))
			}
		}
		if n := hits.Load(); n != 1 {
			t.Errorf("server hits = %d, want 1", n)
		}
	})

	t.Run("generic content type is sniffed", func(t *testing.T) {
		img, err := f.Fetch(ctx, srv.URL+"/raw")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if img.MIMEType != "image/png" {
			t.Errorf("MIMEType = %q, want image/png", img.MIMEType)
		}
	})

	t.Run("non image is rejected", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/page")
		var ferr *FetchError
		if !errors.As(err, &ferr) {
			t.Fatalf("Fetch() error = %v, want *FetchError", err)
		}
	})

	t.Run("non 2xx is rejected", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/missing")
		var ferr *FetchError
		if !errors.As(err, &ferr) || ferr.StatusCode != http.StatusNotFound {
			t.Fatalf("Fetch() error = %v, want 404 FetchError", err)
		}
	})
}

func TestFetchTooLarge(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	f.MaxBytes = 8
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch() error = nil, want size error")
	}
}

func TestFetchCanceledCallerKeepsSharedDownload(t *testing.T) {
	data := pngBytes(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	f := newTestFetcher(time.Minute)
	url := srv.URL + "/shared.png"

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, url)
		firstErr <- err
	}()
	<-started

	type result struct {
		img *Image
		err error
	}
	second := make(chan result, 1)
	go func() {
		img, err := f.Fetch(context.Background(), url)
		second <- result{img, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first Fetch() error = %v, want context.Canceled", err)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second Fetch() error = %v", got.err)
	}
	if !bytes.Equal(got.img.Data, data) {
		t.Errorf("second Fetch() returned %d bytes, want %d", len(got.img.Data), len(data))
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}
