package api

import (
	"log/slog"
	"net/http"

	"storybook/middleware"

	"github.com/gorilla/mux"
)

// NewRouter registers every route. /api/ai requires the API key, the admin
// routes, including catalog management, require a session.
func NewRouter(h *Handler, auth *middleware.Auth, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging(log), middleware.CORS)

	r.HandleFunc("/api/health", h.Health).Methods("GET")
	r.HandleFunc("/login", auth.Login).Methods("POST", "OPTIONS")
	r.HandleFunc("/logout", auth.Logout).Methods("POST", "OPTIONS")

	ai := r.PathPrefix("/api/ai").Subrouter()
	ai.Use(auth.APIKeyAuth)
	ai.HandleFunc("/generate", h.GenerateText).Methods("POST", "OPTIONS")
	ai.HandleFunc("/chat", h.Chat).Methods("POST", "OPTIONS")
	ai.HandleFunc("/complete", h.Complete).Methods("POST", "OPTIONS")
	ai.HandleFunc("/models", h.Models).Methods("GET", "OPTIONS")
	ai.HandleFunc("/find-model", h.FindModel).Methods("POST", "OPTIONS")
	ai.HandleFunc("/fairy-tale-characters", h.FairyTaleCharacters).Methods("POST", "OPTIONS")
	ai.HandleFunc("/replace-child", h.ReplaceChild).Methods("POST", "OPTIONS")
	ai.HandleFunc("/analyze-supabase-images", h.AnalyzeBucketImages).Methods("POST", "OPTIONS")
	ai.HandleFunc("/analyze-supabase-image", h.AnalyzeBucketImage).Methods("POST", "OPTIONS")
	ai.HandleFunc("/fairy-tale-characters-from-db", h.FairyTaleCharactersFromDB).Methods("POST", "OPTIONS")
	ai.HandleFunc("/analyze-from-db", h.AnalyzeFromDB).Methods("POST", "OPTIONS")
	ai.HandleFunc("/replace-child-from-db", h.ReplaceChildFromDB).Methods("POST", "OPTIONS")

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(auth.WebAuth)
	admin.HandleFunc("/generations", h.Generations).Methods("GET", "OPTIONS")
	admin.HandleFunc("/images", h.ListImages).Methods("GET", "OPTIONS")
	admin.HandleFunc("/images", h.UploadImage).Methods("POST")
	admin.HandleFunc("/images/backgrounds", h.Backgrounds).Methods("GET", "OPTIONS")
	admin.HandleFunc("/images/{id:[0-9]+}", h.GetImage).Methods("GET", "OPTIONS")
	admin.HandleFunc("/images/{id:[0-9]+}", h.DeleteImage).Methods("DELETE")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, "Route not found", http.StatusNotFound)
	})
	return r
}
