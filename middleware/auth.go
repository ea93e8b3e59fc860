package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"storybook/config"
	"storybook/lib/sl"

	"github.com/gorilla/sessions"
)

const (
	// SessionName is the key for the cookie session.
	SessionName = "storybook-session"
	// UserSessionKey is the key used to store the authenticated status in the session.
	UserSessionKey = "authenticated"
)

// Auth guards the admin routes with a cookie session and the API routes
// with a bearer key.
type Auth struct {
	store       *sessions.CookieStore
	webPassword string
	apiKey      string
	log         *slog.Logger
}

// NewAuth builds the session store from settings. An empty apiKey leaves
// the API open.
func NewAuth(settings config.Settings, apiKey string, log *slog.Logger) *Auth {
	log = log.With(sl.Module("middleware.auth"))
	if settings.SessionSecret == config.DefaultSessionSecret {
		log.Warn("SESSION_SECRET is not set or is the default; set a strong secret for production")
	}
	store := sessions.NewCookieStore([]byte(settings.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	}
	if apiKey == "" {
		log.Info("STORYBOOK_API_KEY is not set, API routes are open")
	}
	return &Auth{
		store:       store,
		webPassword: settings.WebPassword,
		apiKey:      apiKey,
		log:         log,
	}
}

// WebAuth protects admin routes. Authentication is disabled when no web
// password is set.
func (a *Auth) WebAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.webPassword == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, err := a.store.Get(r, SessionName)
		if err != nil {
			// Happens when the cookie secret changes; treat as logged out.
			a.log.Debug("session decode failed", sl.Err(err))
			WriteError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		if auth, ok := session.Values[UserSessionKey].(bool); !ok || !auth {
			WriteError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyAuth requires "Authorization: Bearer <key>" when a key is configured.
func (a *Auth) APIKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			WriteError(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			WriteError(w, "Invalid Authorization header format. Expected 'Bearer <api_key>'", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(a.apiKey)) != 1 {
			a.log.Warn("invalid api key", slog.String("remote", r.RemoteAddr), sl.Secret(parts[1]))
			WriteError(w, "Invalid API Key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login checks the web password and marks the session authenticated.
// Both JSON and form bodies are accepted.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req.Password = r.FormValue("password")
	}

	if a.webPassword == "" {
		WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Authentication is disabled"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.webPassword)) != 1 {
		a.log.Warn("failed login", slog.String("remote", r.RemoteAddr))
		WriteError(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	session, _ := a.store.Get(r, SessionName)
	session.Values[UserSessionKey] = true
	if err := session.Save(r, w); err != nil {
		a.log.Error("failed to save session", sl.Err(err))
		WriteError(w, "Failed to save session", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Logout clears the session.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := a.store.Get(r, SessionName)
	session.Values[UserSessionKey] = false
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		a.log.Error("failed to clear session", sl.Err(err))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
