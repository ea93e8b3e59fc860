// Package api exposes the orchestrator over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storybook/imagehost"
	"storybook/lib/sl"
	"storybook/middleware"
	"storybook/orchestrator"
	"storybook/providers"
	"storybook/resilience"
	"storybook/storage"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// Service is the part of the orchestrator the handlers call.
type Service interface {
	GenerateText(ctx context.Context, prompt string, opts providers.TextOptions) (*orchestrator.TextResult, error)
	Chat(ctx context.Context, message string, history []providers.Message, opts providers.TextOptions) (*orchestrator.TextResult, error)
	Complete(ctx context.Context, text string) (*orchestrator.Completion, error)
	ListModels() ([]providers.ModelCapabilities, error)
	FindWorkingModel(ctx context.Context) (*orchestrator.ModelProbe, error)

	GenerateBatch(ctx context.Context, subjectURLs []string, backgroundURL string, opts orchestrator.Options) (*orchestrator.BatchOutcome, error)
	ReplaceChild(ctx context.Context, childURL, templateURL string, opts orchestrator.Options) (*orchestrator.Result, error)
	GenerateBatchFromCatalog(ctx context.Context, ids []int64, backgroundID *int64, opts orchestrator.Options) (*orchestrator.BatchOutcome, error)
	GenerateFromCatalog(ctx context.Context, id int64, backgroundID *int64, opts orchestrator.Options) (*orchestrator.Result, error)
	ReplaceChildFromCatalog(ctx context.Context, childID, templateID int64, opts orchestrator.Options) (*orchestrator.Result, error)

	AnalyzeBucketImages(ctx context.Context, opts orchestrator.AnalyzeOptions) (*orchestrator.AnalysisReport, error)
	AnalyzeBucketImage(ctx context.Context, objectPath, model, prompt string, maxTokens int) (*orchestrator.ImageAnalysis, error)

	ListImages(ctx context.Context, limit int) ([]storage.Image, error)
	GetImage(ctx context.Context, id int64) (*storage.Image, error)
	AddImage(ctx context.Context, up orchestrator.Upload) (*storage.Image, error)
	DeleteImage(ctx context.Context, id int64) (*storage.Image, error)
	ListBackgrounds(ctx context.Context, folder string, limit int) ([]imagehost.Object, error)

	Generations(ctx context.Context, limit int) ([]storage.Generation, error)
}

// Handler serves the HTTP API.
type Handler struct {
	svc Service
	log *slog.Logger
	// now is replaced in tests.
	now func() time.Time
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log.With(sl.Module("api")),
		now: time.Now,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) sendData(w http.ResponseWriter, data any, message string) {
	middleware.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

func (h *Handler) sendError(w http.ResponseWriter, message string, statusCode int) {
	middleware.WriteError(w, message, statusCode)
}

// decode reads the JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.log.Debug("invalid request body", slog.String("path", r.URL.Path), sl.Err(err))
	h.sendError(w, "Invalid request body", http.StatusBadRequest)
	return false
}

// fail maps an orchestrator error onto a status and user message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound *orchestrator.ImageNotFoundError
		invalid  *orchestrator.InvalidUploadError
	)
	switch {
	case errors.As(err, &notFound):
		h.sendError(w, fmt.Sprintf("Image with ID %d not found", notFound.ID), http.StatusNotFound)
	case errors.As(err, &invalid):
		h.sendError(w, invalid.Reason, http.StatusBadRequest)
	case errors.Is(err, orchestrator.ErrNoCatalogImages):
		h.sendError(w, "No images found in database with the provided IDs", http.StatusNotFound)
	case errors.Is(err, orchestrator.ErrNoBucketImages):
		h.sendError(w, "No images found in Supabase Storage", http.StatusNotFound)
	case errors.Is(err, orchestrator.ErrNotConfigured):
		h.sendError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		h.log.Info("request canceled", slog.String("path", r.URL.Path))
	default:
		h.log.Error("request failed", slog.String("path", r.URL.Path), sl.Err(err))
		h.sendError(w, resilience.UserMessage(err), http.StatusInternalServerError)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"message":   "Server is running",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Generations lists recent generation records.
func (h *Handler) Generations(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		h.sendError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	list, err := h.svc.Generations(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []storage.Generation{}
	}
	h.sendData(w, list, "")
}
