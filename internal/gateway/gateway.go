// Package gateway serves the docquery HTTP API.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"docquery/internal/auth"
	"docquery/internal/config"
	"docquery/internal/documents"
	"docquery/internal/indexstore"
	"docquery/internal/maintenance"
	"docquery/internal/middleware"
	"docquery/internal/qa"
)

// APIPrefix is prepended to every route.
const APIPrefix = "/api/v1"

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Deps are the collaborators the gateway serves. All but Scheduler are
// required.
type Deps struct {
	DB        *sql.DB
	Auth      *auth.Service
	Documents *documents.Store
	Ingester  *documents.Ingester
	QA        *qa.Service
	Indexes   indexstore.Backend
	Scheduler *maintenance.Scheduler
	Logger    *log.Logger
}

// Gateway wires the HTTP surface to the services.
type Gateway struct {
	config *config.Config
	deps   Deps
	logger *log.Logger

	verbose bool

	authMiddleware      *middleware.AuthMiddleware
	refreshMiddleware   *middleware.AuthMiddleware
	rateLimitMiddleware *middleware.RateLimitMiddleware

	startedAt time.Time
	handler   http.Handler
}

// New creates a Gateway. Call Handler for the routes or Start to serve them.
func New(cfg *config.Config, deps Deps) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway: config is required")
	}
	switch {
	case deps.DB == nil:
		return nil, errors.New("gateway: database is required")
	case deps.Auth == nil:
		return nil, errors.New("gateway: auth service is required")
	case deps.Documents == nil || deps.Ingester == nil:
		return nil, errors.New("gateway: document store and ingester are required")
	case deps.QA == nil:
		return nil, errors.New("gateway: qa service is required")
	case deps.Indexes == nil:
		return nil, errors.New("gateway: index store is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}

	g := &Gateway{
		config:    cfg,
		deps:      deps,
		logger:    deps.Logger,
		verbose:   cfg.Debug.VerboseLogging,
		startedAt: time.Now(),
	}

	onAuthError := func(r *http.Request, err middleware.AuthError) {
		if g.verbose {
			g.logger.Printf("[Auth] request_id=%s %s %s: %s",
				middleware.GetRequestID(r.Context()), r.Method, r.URL.Path, err.Message)
		}
	}
	g.authMiddleware = middleware.NewAuthMiddleware(deps.Auth.Tokens(), middleware.AuthMiddlewareConfig{
		TokenType:   auth.TokenTypeAccess,
		OnAuthError: onAuthError,
		Logger:      deps.Logger,
	})
	g.refreshMiddleware = middleware.NewAuthMiddleware(deps.Auth.Tokens(), middleware.AuthMiddlewareConfig{
		TokenType:   auth.TokenTypeRefresh,
		OnAuthError: onAuthError,
		Logger:      deps.Logger,
	})

	rl := cfg.RateLimiting
	g.rateLimitMiddleware = middleware.NewRateLimitMiddleware(middleware.RateLimitMiddlewareConfig{
		Config: middleware.RateLimitConfig{
			Enabled: rl.Enabled,
			Anonymous: middleware.RateLimitRule{
				WindowSeconds: rl.Anonymous.WindowSeconds,
				MaxRequests:   rl.Anonymous.MaxRequests,
			},
			Authenticated: middleware.RateLimitRule{
				WindowSeconds: rl.Authenticated.WindowSeconds,
				MaxRequests:   rl.Authenticated.MaxRequests,
			},
			CleanupIntervalSeconds: rl.CleanupIntervalSeconds,
		},
		Logger: deps.Logger,
	})

	g.handler = g.routes()
	return g, nil
}

// Handler returns the complete HTTP handler, middleware included.
func (g *Gateway) Handler() http.Handler { return g.handler }

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints are rate limited per client IP.
	public := func(h http.HandlerFunc) http.Handler {
		return g.rateLimitMiddleware.Wrap(h)
	}
	// Protected endpoints: auth first (sets context), then rate limiting
	// keyed by the authenticated user.
	protected := func(h http.HandlerFunc) http.Handler {
		return g.authMiddleware.Wrap(g.rateLimitMiddleware.Wrap(h))
	}

	mux.Handle("POST "+APIPrefix+"/register", public(g.handleRegister))
	mux.Handle("POST "+APIPrefix+"/login", public(g.handleLogin))
	mux.Handle("POST "+APIPrefix+"/refresh", g.refreshMiddleware.Wrap(g.rateLimitMiddleware.Wrap(http.HandlerFunc(g.handleRefresh))))
	mux.Handle("GET "+APIPrefix+"/health", public(g.handleHealth))

	mux.Handle("POST "+APIPrefix+"/ingest", protected(g.handleIngest))
	mux.Handle("GET "+APIPrefix+"/list-documents", protected(g.handleListDocuments))
	mux.Handle("POST "+APIPrefix+"/qa", protected(g.handleQA))

	mux.HandleFunc("/", g.handleNotFound)

	return middleware.Chain(mux,
		middleware.RequestID(g.logger),
		middleware.CORS(middleware.CORSConfig{AllowedOrigins: g.config.CORS.AllowedOrigins}),
		g.recoverPanics,
	)
}

// handleNotFound answers unknown paths, and known paths with the wrong
// method, inside the JSON envelope.
func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	for _, route := range []string{"/register", "/login", "/refresh", "/health", "/ingest", "/list-documents", "/qa"} {
		if r.URL.Path == APIPrefix+route {
			writeFailure(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
			return
		}
	}
	writeFailure(w, http.StatusNotFound, msgNotFound)
}

func (g *Gateway) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				g.logger.Printf("[Gateway] request_id=%s panic serving %s %s: %v",
					middleware.GetRequestID(r.Context()), r.Method, r.URL.Path, rec)
				writeFailure(w, http.StatusInternalServerError, msgInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Start serves the API on the configured port until ctx is cancelled, then
// shuts down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", g.config.Port, err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	g.logger.Printf("[Gateway] Listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		g.rateLimitMiddleware.Stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	g.logger.Println("[Gateway] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		g.logger.Printf("[Gateway] Server shutdown error: %v", err)
	}
	g.rateLimitMiddleware.Stop()

	g.logger.Println("[Gateway] Stopped")
	return nil
}
