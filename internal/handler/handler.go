package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"shortlink/internal/model"
	"shortlink/internal/service"
)

// maxBodyBytes fits a MaxURLLength URL even when every character is
// escaped as \uXXXX.
const maxBodyBytes = 16 << 10

// Shortener is the part of service.Service the HTTP layer needs.
type Shortener interface {
	CreateOrGetRetry(ctx context.Context, original string, attempts int, backoff time.Duration) (*model.ShortLink, error)
	Resolve(ctx context.Context, code string) (*model.ShortLink, error)
	Lookup(ctx context.Context, code string) (*model.ShortLink, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	// BaseURL prefixes short URLs; empty means the request's scheme and host.
	BaseURL      string
	RateLimit    int
	RateWindow   time.Duration
	CreateTries  int
	CreateDelay  time.Duration
	Dependencies map[string]Pinger
}

type Handler struct {
	Service     Shortener
	RateLimiter RateLimiter
	Logger      *zap.Logger
	opts        Options
}

type shortenRequest struct {
	URL string `json:"url"`
}

type shortenResponse struct {
	ShortURL    string `json:"shortUrl"`
	ShortCode   string `json:"shortCode"`
	OriginalURL string `json:"originalUrl"`
}

type infoResponse struct {
	ShortCode   string    `json:"shortCode"`
	OriginalURL string    `json:"originalUrl"`
	ClickCount  int64     `json:"clickCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(s Shortener, rl RateLimiter, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CreateTries < 1 {
		opts.CreateTries = 1
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Handler{
		Service:     s,
		RateLimiter: rl,
		Logger:      logger,
		opts:        opts,
	}
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/shorten", h.RateLimitMiddleware(h.CreateShort)).Methods("POST")
	r.HandleFunc("/api/info/{code}", h.Info).Methods("GET")
	r.HandleFunc("/r/{code}", h.RateLimitMiddleware(h.Redirect)).Methods("GET")
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/readyz", h.Readyz).Methods("GET")

	r.Use(h.logRequests)

	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, dep := range h.opts.Dependencies {
		if err := dep.Ping(ctx); err != nil {
			h.Logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: name + " unavailable"})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (h *Handler) CreateShort(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})
		return
	}

	m, err := h.Service.CreateOrGetRetry(r.Context(), req.URL, h.opts.CreateTries, h.opts.CreateDelay)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &shortenResponse{
		ShortURL:    h.shortURL(r, m.ShortCode),
		ShortCode:   m.ShortCode,
		OriginalURL: m.OriginalURL,
	})
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	m, err := h.Service.Resolve(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, m.OriginalURL, http.StatusFound)
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	m, err := h.Service.Lookup(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &infoResponse{
		ShortCode:   m.ShortCode,
		OriginalURL: m.OriginalURL,
		ClickCount:  m.ClickCount,
		CreatedAt:   m.CreatedAt,
	})
}

func (h *Handler) shortURL(r *http.Request, code string) string {
	base := h.opts.BaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/r/" + code
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "short link not found"})
	case errors.Is(err, service.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		h.Logger.Info("request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
