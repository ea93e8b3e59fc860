package imagehost

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *BucketClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewBucketClient(srv.URL, "service-key", "book-uploads", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Client = srv.Client()
	return c
}

func TestUpload(t *testing.T) {
	var gotPath, gotAuth, gotType, gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"Key":"book-uploads/generated/a b.webp"}`))
	})

	u, err := c.Upload(context.Background(), "generated/a b.webp", []byte("data"), "image/webp")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if gotPath != "/storage/v1/object/book-uploads/generated/a%20b.webp" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer service-key" || gotType != "image/webp" || gotBody != "data" {
		t.Errorf("auth=%q type=%q body=%q", gotAuth, gotType, gotBody)
	}
	if want := c.BaseURL + "/storage/v1/object/public/book-uploads/generated/a%20b.webp"; u != want {
		t.Errorf("Upload() = %q, want %q", u, want)
	}
}

func TestUploadError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
	})
	if _, err := c.Upload(context.Background(), "x.png", []byte("data"), "image/png"); err == nil {
		t.Fatal("Upload() error = nil, want error")
	}
}

func TestDelete(t *testing.T) {
	var got map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/storage/v1/object/book-uploads" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`[]`))
	})
	if err := c.Delete(context.Background(), "backgrounds/old.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if diff := cmp.Diff(map[string][]string{"prefixes": {"backgrounds/old.png"}}, got); diff != "" {
		t.Errorf("delete body mismatch (-want +got):\n%s", diff)
	}
}

func TestListAllImages(t *testing.T) {
	listings := map[string]string{
		"": `[
			{"id": null, "name": "backgrounds"},
			{"id": null, "name": "covers"},
			{"id": "1", "name": "root.png", "metadata": {"size": 10}}
		]`,
		"backgrounds": `[
			{"id": "2", "name": "forest.jpg", "metadata": {"size": 20}},
			{"id": "3", "name": "notes.txt", "metadata": {"size": 5}}
		]`,
		"covers": `[
			{"id": "4", "name": "Cover.WEBP", "metadata": {"size": 30}}
		]`,
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/list/book-uploads" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req listRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(listings[req.Prefix]))
	})

	got, err := c.ListAllImages(context.Background(), 50)
	if err != nil {
		t.Fatalf("ListAllImages() error = %v", err)
	}
	var paths []string
	for _, o := range got {
		paths = append(paths, o.Path)
	}
	want := []string{"root.png", "backgrounds/forest.jpg", "covers/Cover.WEBP"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if got[1].URL != c.BaseURL+"/storage/v1/object/public/book-uploads/backgrounds/forest.jpg" || got[1].Size != 20 {
		t.Errorf("object = %+v", got[1])
	}
}
