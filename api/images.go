package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"storybook/lib/sl"
	"storybook/middleware"
	"storybook/orchestrator"

	"github.com/gorilla/mux"
)

const fileTooLarge = "File too large. Maximum size is 10MB per file."

// queryLimit parses the optional ?limit parameter. Zero means the default.
func queryLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func imageID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		h.sendError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	images, err := h.svc.ListImages(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, images, fmt.Sprintf("%d image(s)", len(images)))
}

func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(r)
	if !ok {
		h.sendError(w, "Invalid image ID", http.StatusBadRequest)
		return
	}
	img, err := h.svc.GetImage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, img, "")
}

// UploadImage accepts a multipart form with a "name" field and an "image"
// file and adds the picture to the catalog.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, orchestrator.MaxUploadSize+maxBodySize)
	if err := r.ParseMultipartForm(maxBodySize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, fileTooLarge, http.StatusBadRequest)
			return
		}
		h.log.Debug("invalid upload form", sl.Err(err))
		h.sendError(w, "Upload error: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := r.FormValue("name")
	if name == "" {
		h.sendError(w, "Name is required", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		h.sendError(w, "Image file is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.sendError(w, "Upload error: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	if header.Size > orchestrator.MaxUploadSize {
		h.sendError(w, fileTooLarge, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, orchestrator.MaxUploadSize+1))
	if err != nil {
		h.sendError(w, "Upload error: "+err.Error(), http.StatusBadRequest)
		return
	}

	img, err := h.svc.AddImage(r.Context(), orchestrator.Upload{
		Name:        name,
		Description: r.FormValue("description"),
		Filename:    header.Filename,
		Data:        data,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("image uploaded", slog.Int64("id", img.ID), slog.String("filename", header.Filename))
	middleware.WriteJSON(w, http.StatusCreated, envelope{Success: true, Data: img, Message: "Image created successfully"})
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(r)
	if !ok {
		h.sendError(w, "Invalid image ID", http.StatusBadRequest)
		return
	}
	img, err := h.svc.DeleteImage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, img, "Image deleted successfully")
}

// Backgrounds lists the images of a bucket folder, "backgrounds" by default.
func (h *Handler) Backgrounds(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		h.sendError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	objects, err := h.svc.ListBackgrounds(r.Context(), r.URL.Query().Get("folder"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, objects, "")
}

