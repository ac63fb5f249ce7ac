package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blackmichael/share-your-sound/internal/config"
	"github.com/blackmichael/share-your-sound/internal/domain"
)

// Server is the HTTP server for the board API, the live stream and the
// static front-end.
type Server struct {
	cfg         *config.Config
	postService *domain.PostService
	logger      zerolog.Logger
	handler     http.Handler
	httpServer  *http.Server
}

// NewServer creates a new HTTP server. live serves the websocket stream at
// /api/posts/live and may be nil.
func NewServer(cfg *config.Config, postService *domain.PostService, live http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		postService: postService,
		logger:      logger,
	}

	postLimiter := NewRateLimiter(cfg.PostRate)
	reportLimiter := NewRateLimiter(cfg.ReportRate)

	clientKey := PeerIP
	if cfg.TrustProxy {
		clientKey = GetClientIP
	}

	submit := withRateLimit(postLimiter, clientKey, "post", "Too many posts from this IP, please try again later.", s.handleSubmitPost)
	report := withRateLimit(reportLimiter, clientKey, "report", "Too many reports from this IP, please try again later.", s.handleReportPost)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/posts", s.handleListPosts)
	api.HandleFunc("POST /post", submit)
	api.HandleFunc("POST /post/{$}", submit)
	api.HandleFunc("POST /report/{id}", report)
	api.HandleFunc("GET /health", s.handleHealth)
	api.Handle("GET /metrics", promhttp.Handler())
	api.Handle("GET /", http.FileServer(http.Dir(cfg.PublicDir)))

	// The websocket upgrade bypasses gzip and the body limit.
	root := http.NewServeMux()
	if live != nil {
		root.Handle("GET /api/posts/live", live)
	}
	root.Handle("/", gzhttp.GzipHandler(withBodyLimit(api)))

	var handler http.Handler = withSecurityHeaders(root)
	handler = otelhttp.NewHandler(handler, "share-your-sound",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	s.handler = withLogging(logger, handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type resultResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type postResponse struct {
	ID        int64     `json:"id"`
	SongTitle string    `json:"songTitle"`
	SongURL   string    `json:"songUrl"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reports   int       `json:"reports"`
	Platform  string    `json:"platform"`
	EmbedCode string    `json:"embedCode"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.postService.ListActivePosts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list posts")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Database error"})
		return
	}

	writeJSON(w, http.StatusOK, toPostResponses(posts))
}

func (s *Server) handleSubmitPost(w http.ResponseWriter, r *http.Request) {
	title, songURL, err := readSubmission(r)
	if err != nil {
		s.logger.Warn().Err(err).Msg("unreadable submission body")
		writeJSON(w, http.StatusBadRequest, resultResponse{Error: "Invalid request body"})
		return
	}

	if _, err := s.postService.SubmitPost(r.Context(), title, songURL); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTitle):
			writeJSON(w, http.StatusBadRequest, resultResponse{Error: "Invalid title"})
		case errors.Is(err, domain.ErrInvalidURL):
			writeJSON(w, http.StatusBadRequest, resultResponse{Error: "Invalid URL"})
		default:
			s.logger.Error().Err(err).Msg("failed to submit post")
			writeJSON(w, http.StatusInternalServerError, resultResponse{Error: "Database error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{Success: true})
}

func (s *Server) handleReportPost(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// No post can have this id, so the report is a no-op.
		s.logger.Debug().Str("id", raw).Msg("report for non-numeric id ignored")
		writeJSON(w, http.StatusOK, resultResponse{Success: true})
		return
	}

	if _, err := s.postService.ReportPost(r.Context(), id); err != nil {
		s.logger.Error().Err(err).Int64("post_id", id).Msg("failed to report post")
		writeJSON(w, http.StatusInternalServerError, resultResponse{})
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{Success: true})
}

// readSubmission accepts a JSON object or a form body. Non-string JSON
// values read as empty and fail validation downstream.
func readSubmission(r *http.Request) (string, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", fmt.Errorf("decoding json body: %w", err)
		}
		title, _ := body["songTitle"].(string)
		songURL, _ := body["songUrl"].(string)
		return title, songURL, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", fmt.Errorf("parsing form body: %w", err)
	}
	return r.PostFormValue("songTitle"), r.PostFormValue("songUrl"), nil
}

func toPostResponses(posts []domain.BoardPost) []postResponse {
	result := make([]postResponse, len(posts))
	for i, p := range posts {
		result[i] = postResponse{
			ID:        p.ID,
			SongTitle: p.SongTitle,
			SongURL:   p.SongURL,
			CreatedAt: p.CreatedAt,
			ExpiresAt: p.ExpiresAt,
			Reports:   p.Reports,
			Platform:  string(p.Embed.Platform),
			EmbedCode: p.Embed.HTML,
		}
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
