package api

import (
	"fmt"
	"net/http"
	"time"

	"storybook/orchestrator"
)

type charactersRequest struct {
	ImageURLs          []string `json:"imageUrls"`
	BackgroundImageURL string   `json:"backgroundImageUrl"`
	orchestrator.Options
}

type replaceRequest struct {
	ChildImageURL    string `json:"childImageUrl"`
	TemplateImageURL string `json:"templateImageUrl"`
	orchestrator.Options
}

type catalogCharactersRequest struct {
	ImageIDs          []int64 `json:"imageIds"`
	BackgroundImageID *int64  `json:"backgroundImageId"`
	orchestrator.Options
}

type catalogAnalyzeRequest struct {
	ImageID           int64  `json:"imageId"`
	BackgroundImageID *int64 `json:"backgroundImageId"`
	orchestrator.Options
}

type catalogReplaceRequest struct {
	ChildImageID    int64 `json:"childImageId"`
	TemplateImageID int64 `json:"templateImageId"`
	orchestrator.Options
}

type analyzeImagesRequest struct {
	Folder string `json:"folder"`
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Limit  int    `json:"limit"`
	// DelayBetweenRequests is in milliseconds.
	DelayBetweenRequests *int `json:"delayBetweenRequests"`
	MaxTokens            int  `json:"maxTokens"`
}

type analyzeImageRequest struct {
	ImagePath string `json:"imagePath"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"maxTokens"`
}

// FairyTaleCharacters runs a batch over image URLs. Per item failures are
// reported inside a successful envelope.
func (h *Handler) FairyTaleCharacters(w http.ResponseWriter, r *http.Request) {
	var req charactersRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.ImageURLs) == 0 {
		h.sendError(w, "Image URLs array is required", http.StatusBadRequest)
		return
	}

	out, err := h.svc.GenerateBatch(r.Context(), req.ImageURLs, req.BackgroundImageURL, req.Options)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, out, "")
}

func (h *Handler) ReplaceChild(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ChildImageURL == "" {
		h.sendError(w, "Child image URL is required", http.StatusBadRequest)
		return
	}
	if req.TemplateImageURL == "" {
		h.sendError(w, "Template image URL is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ReplaceChild(r.Context(), req.ChildImageURL, req.TemplateImageURL, req.Options)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, res, "")
}

func (h *Handler) FairyTaleCharactersFromDB(w http.ResponseWriter, r *http.Request) {
	var req catalogCharactersRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.ImageIDs) == 0 {
		h.sendError(w, "Image IDs array is required", http.StatusBadRequest)
		return
	}

	out, err := h.svc.GenerateBatchFromCatalog(r.Context(), req.ImageIDs, req.BackgroundImageID, req.Options)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, out, fmt.Sprintf("Processed %d image(s) from database", len(req.ImageIDs)))
}

func (h *Handler) AnalyzeFromDB(w http.ResponseWriter, r *http.Request) {
	var req catalogAnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ImageID == 0 {
		h.sendError(w, "Image ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.GenerateFromCatalog(r.Context(), req.ImageID, req.BackgroundImageID, req.Options)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, res, "Image processed from database successfully")
}

func (h *Handler) ReplaceChildFromDB(w http.ResponseWriter, r *http.Request) {
	var req catalogReplaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ChildImageID == 0 {
		h.sendError(w, "Child image ID is required", http.StatusBadRequest)
		return
	}
	if req.TemplateImageID == 0 {
		h.sendError(w, "Template image ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ReplaceChildFromCatalog(r.Context(), req.ChildImageID, req.TemplateImageID, req.Options)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, res, "Child replaced in template using images from database")
}

func (h *Handler) AnalyzeBucketImages(w http.ResponseWriter, r *http.Request) {
	var req analyzeImagesRequest
	if !h.decode(w, r, &req) {
		return
	}

	opts := orchestrator.AnalyzeOptions{
		Folder:    req.Folder,
		Model:     req.Model,
		Prompt:    req.Prompt,
		Limit:     req.Limit,
		MaxTokens: req.MaxTokens,
	}
	if req.DelayBetweenRequests != nil {
		d := time.Duration(*req.DelayBetweenRequests) * time.Millisecond
		opts.Delay = &d
	}
	report, err := h.svc.AnalyzeBucketImages(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, report, "")
}

func (h *Handler) AnalyzeBucketImage(w http.ResponseWriter, r *http.Request) {
	var req analyzeImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ImagePath == "" {
		h.sendError(w, "Image path is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.AnalyzeBucketImage(r.Context(), req.ImagePath, req.Model, req.Prompt, req.MaxTokens)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, res, "")
}
