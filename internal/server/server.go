// Package server provides the HTTP surface of Internship Compass: the
// per-session page, the recommendation and language endpoints, and a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/internship-compass/internal/catalog"
	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/config"
	"github.com/jonathan/internship-compass/internal/i18n"
	"github.com/jonathan/internship-compass/internal/recommend"
	"github.com/jonathan/internship-compass/internal/server/middleware"
	"github.com/jonathan/internship-compass/internal/server/ratelimit"
	"github.com/jonathan/internship-compass/internal/session"
	"github.com/jonathan/internship-compass/internal/types"
	"golang.org/x/sync/errgroup"
)

// sweepInterval is how often idle sessions are expired.
const sweepInterval = time.Minute

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	handler    http.Handler

	catalog         *catalog.Catalog
	assembler       *recommend.Assembler
	translator      completion.Translator
	validator       *types.FormValidator
	sessions        *session.Manager
	pages           *Pages
	cookies         *LanguageCookies
	rateLimiter     *ratelimit.Limiter
	initialLanguage string
}

// Config holds server configuration
type Config struct {
	Port int
	// InitialLanguage is applied to new visitors without a language cookie.
	InitialLanguage string
	SessionTTL      time.Duration
	// MaxSessions caps live sessions; zero uses session.DefaultMaxSessions.
	MaxSessions   int
	SecureCookies bool
	Cookie        *config.CookieConfig
	RateLimit     *ratelimit.Config
}

// New creates a new server instance
func New(cfg Config, cat *catalog.Catalog, ranker completion.Ranker, translator completion.Translator) (*Server, error) {
	if cfg.Cookie == nil {
		cookieCfg, err := config.NewCookieConfig("")
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie config: %w", err)
		}
		cfg.Cookie = cookieCfg
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.LoadConfig()
	}

	pages, err := NewPages(cat)
	if err != nil {
		return nil, err
	}

	initial := i18n.DefaultLanguage
	if cfg.InitialLanguage != "" {
		code, ok := i18n.Normalize(cfg.InitialLanguage)
		if !ok {
			return nil, fmt.Errorf("unsupported initial language %q", cfg.InitialLanguage)
		}
		initial = code
	}

	s := &Server{
		catalog:         cat,
		assembler:       recommend.NewAssembler(ranker, cat),
		translator:      translator,
		validator:       types.NewFormValidator(cat.Sectors()),
		sessions:        session.NewManager(translator, pages.Document, cfg.SessionTTL),
		pages:           pages,
		cookies:         NewLanguageCookies(cfg.Cookie, cfg.SecureCookies),
		rateLimiter:     ratelimit.NewLimiter(cfg.RateLimit),
		initialLanguage: initial,
	}

	s.sessions.SetMaxSessions(cfg.MaxSessions)

	withSession := middleware.SessionMiddleware(s.sessions, cfg.SecureCookies)
	withOptionalSession := middleware.OptionalSessionMiddleware(s.sessions)

	// Setup router
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", withSession(http.HandlerFunc(s.handleIndex)))
	mux.Handle("POST /recommendations", withSession(http.HandlerFunc(s.handleRecommendations)))
	mux.Handle("POST /language", withSession(http.HandlerFunc(s.handleLanguage)))

	// JSON API
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.Handle("GET /api/languages", withOptionalSession(http.HandlerFunc(s.handleLanguages)))
	mux.HandleFunc("GET /api/sectors", s.handleSectors)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // ranking and translation wait on the model
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled or the process is interrupted,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("[server] starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.sessions.Run(gctx, sweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("[server] shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()

	// Stop rate limiter cleanup goroutine
	s.rateLimiter.Stop()
	log.Println("[server] stopped")
	return err
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, clientID, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[%s] %s %d in %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sessions":    s.sessions.Len(),
		"internships": s.catalog.Len(),
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, clientID string, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	log.Printf("[rate-limit] limit exceeded for %s: Limit=%d Remaining=%d", clientID, info.Limit, info.Remaining)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
