package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rupliteflo/fmpost/server/internal/auth"
	"github.com/rupliteflo/fmpost/server/internal/config"
	"github.com/rupliteflo/fmpost/server/internal/store"
)

// ResourceContentType is the media type the resource endpoint accepts.
const ResourceContentType = "application/vnd.oracle.adf.resourceitem+json"

// maxBody caps a submission body.
const maxBody = 10 << 20

// Publisher receives an event for every token and resource request.
type Publisher interface {
	Publish(event string, data any)
}

// Option configures a Handler.
type Option func(*Handler)

// WithEvents forwards request events to p.
func WithEvents(p Publisher) Option { return func(h *Handler) { h.events = p } }

// Handler serves the token endpoint, the resource endpoint and the
// /api/v1/* inspection routes.
type Handler struct {
	cfg    config.ServerConfig
	store  *store.Store
	mux    *http.ServeMux
	events Publisher

	tokenHits    atomic.Int64
	resourceHits atomic.Int64
}

// New creates a Handler for cfg backed by st and registers all routes.
func New(cfg config.ServerConfig, st *store.Store, opts ...Option) http.Handler {
	h := &Handler{cfg: cfg, store: st, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}

	creds := auth.Credentials{
		BearerToken: cfg.Token.AccessToken,
		BasicUser:   cfg.Basic.Username,
		BasicPass:   cfg.Basic.PasswordValue(),
	}

	h.mux.HandleFunc(cfg.Token.Path, h.token)
	h.mux.Handle(cfg.Resource.Path, auth.Middleware(creds, http.HandlerFunc(h.resource)))
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/submissions", h.listSubmissions)
	h.mux.HandleFunc("/api/v1/submissions/", h.getSubmission)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- stand-in endpoints -----------------------------------------------------

// token answers the OAuth password grant. The first Token.FailFirst requests
// that pass validation receive an empty access_token.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid_request")
		return
	}

	tc := h.cfg.Token
	if tc.ClientID != "" {
		id, secret, ok := r.BasicAuth()
		if !ok || id != tc.ClientID || secret != tc.Secret() {
			slog.Warn("token: client authentication failed", "client_id", id)
			jsonErr(w, http.StatusUnauthorized, "invalid_client")
			return
		}
	}
	if r.PostForm.Get("grant_type") != "password" {
		jsonErr(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}
	if tc.Username != "" {
		if r.PostForm.Get("username") != tc.Username || r.PostForm.Get("password") != tc.UserPassword() {
			slog.Warn("token: resource owner credentials rejected", "username", r.PostForm.Get("username"))
			jsonErr(w, http.StatusBadRequest, "invalid_grant")
			return
		}
	}

	n := h.tokenHits.Add(1)
	resp := TokenResponse{AccessToken: tc.AccessToken, TokenType: "Bearer", ExpiresIn: 3600}
	if n <= int64(tc.FailFirst) {
		resp.AccessToken = ""
	}
	slog.Info("token: issued", "request", n, "empty", resp.AccessToken == "", "scope", r.PostForm.Get("scope"))
	h.publish("token", map[string]any{"request": n, "empty": resp.AccessToken == ""})
	jsonResp(w, http.StatusOK, resp)
}

// resource accepts a submission. Auth has already been checked.
func (h *Handler) resource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != ResourceContentType {
		jsonErr(w, http.StatusUnsupportedMediaType, "unsupported content type")
		return
	}

	n := h.resourceHits.Add(1)
	if n <= int64(h.cfg.Resource.FailFirst) {
		slog.Info("resource: simulated outage", "request", n)
		h.publish("resource", map[string]any{"request": n, "status": http.StatusServiceUnavailable})
		jsonErr(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		jsonErr(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	sub := h.store.Add(store.Submission{
		Path:        r.URL.Path,
		ContentType: ct,
		AuthMode:    auth.ModeFrom(r.Context()),
		Body:        body,
	})
	slog.Info("resource: created", "id", sub.ID, "auth", sub.AuthMode, "size", len(body))
	h.publish("resource", map[string]any{
		"request": n,
		"status":  http.StatusCreated,
		"id":      sub.ID,
		"auth":    sub.AuthMode,
		"size":    len(body),
	})

	w.Header().Set("Location", "/api/v1/submissions/"+sub.ID)
	jsonResp(w, http.StatusCreated, CreatedResponse{ID: sub.ID})
}

// --- inspection routes ------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		Submissions:      len(h.store.List()),
		TokenRequests:    h.tokenHits.Load(),
		ResourceRequests: h.resourceHits.Load(),
	})
}

// listSubmissions returns GET /api/v1/submissions, oldest first.
func (h *Handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	subs := h.store.List()
	out := make([]SubmissionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubmissionResponse(s))
	}
	jsonResp(w, http.StatusOK, out)
}

// getSubmission returns GET /api/v1/submissions/{id}; 404 if unknown or expired.
func (h *Handler) getSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/submissions/")
	if id == "" {
		h.listSubmissions(w, r)
		return
	}
	s, ok := h.store.Get(id)
	if !ok || time.Since(s.ReceivedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "submission not found")
		return
	}
	jsonResp(w, http.StatusOK, toSubmissionResponse(s))
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) publish(event string, data any) {
	if h.events != nil {
		h.events.Publish(event, data)
	}
}

func toSubmissionResponse(s *store.Submission) SubmissionResponse {
	resp := SubmissionResponse{
		ID:          s.ID,
		Path:        s.Path,
		ContentType: s.ContentType,
		AuthMode:    s.AuthMode,
		Size:        len(s.Body),
		ReceivedAt:  s.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if json.Valid(s.Body) {
		resp.Payload = json.RawMessage(s.Body)
	}
	return resp
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
