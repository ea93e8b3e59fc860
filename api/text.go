package api

import (
	"net/http"

	"storybook/middleware"
	"storybook/providers"
)

type generateRequest struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model"`
	Temperature     *float64 `json:"temperature"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

// historyEntry accepts the content under "content", "text" or "message".
type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

func (e historyEntry) message() providers.Message {
	role := e.Role
	if role == "" {
		role = "user"
	}
	content := e.Content
	if content == "" {
		content = e.Text
	}
	if content == "" {
		content = e.Message
	}
	return providers.Message{Role: role, Content: content}
}

type chatRequest struct {
	Message         string         `json:"message"`
	History         []historyEntry `json:"history"`
	Model           string         `json:"model"`
	Temperature     *float64       `json:"temperature"`
	MaxOutputTokens int            `json:"maxOutputTokens"`
}

type completeRequest struct {
	Text string `json:"text"`
}

func (h *Handler) GenerateText(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		h.sendError(w, "Prompt is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.GenerateText(r.Context(), req.Prompt, providers.TextOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, res, "")
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		h.sendError(w, "Message is required", http.StatusBadRequest)
		return
	}

	history := make([]providers.Message, 0, len(req.History))
	for _, e := range req.History {
		history = append(history, e.message())
	}
	res, err := h.svc.Chat(r.Context(), req.Message, history, providers.TextOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, res, "")
}

// Complete answers with the completion fields at the top level.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		h.sendError(w, "Text is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Complete(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.ListModels()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, models, "")
}

func (h *Handler) FindModel(w http.ResponseWriter, r *http.Request) {
	probe, err := h.svc.FindWorkingModel(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sendData(w, probe, "")
}
