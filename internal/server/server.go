package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jamie/pipecanvas/internal/config"
	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/server/middleware"
	"github.com/jamie/pipecanvas/internal/server/ratelimit"
)

// Server is the PipeCanvas HTTP API server.
type Server struct {
	httpServer *http.Server
	db         *db.DB
	limiter    *ratelimit.Limiter
}

// New creates a fully wired Server from the given configuration.
func New(cfg *config.ServerConfig, jwtConfig *config.JWTConfig, passwordConfig *config.PasswordConfig, database *db.DB) *Server {
	jwtService := NewJWTService(jwtConfig)
	validator := jwtService.AsTokenValidator()
	requireAuth := middleware.RequireAuth(validator)
	optionalAuth := middleware.OptionalAuth(validator)

	userService := NewUserService(database, passwordConfig)
	authHandler := NewAuthHandler(userService, jwtService)
	userHandler := NewUserHandler(database)
	billingHandler := NewBillingHandler(database, cfg.WebhookSecret)
	runHandler := NewRunHandler(database)
	jobHandler := NewJobHandler(database)
	ticketHandler := NewTicketHandler(database)
	workflowHandler := NewWorkflowHandler(database)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)

	mux.Handle("GET /v1/users/me", requireAuth(http.HandlerFunc(userHandler.Me)))
	mux.Handle("GET /v1/users/me/credits", requireAuth(http.HandlerFunc(userHandler.Credits)))
	mux.Handle("GET /v1/users/me/transactions", requireAuth(http.HandlerFunc(userHandler.Transactions)))

	// Authenticated by shared secret, not JWT.
	mux.HandleFunc("POST /v1/billing/webhook", billingHandler.Webhook)

	mux.Handle("POST /v1/runs", requireAuth(http.HandlerFunc(runHandler.Create)))
	mux.Handle("GET /v1/runs/{id}", requireAuth(http.HandlerFunc(runHandler.Get)))
	// Inference worker callback; workers authenticate like users.
	mux.Handle("POST /v1/runs/{id}/status", requireAuth(http.HandlerFunc(runHandler.UpdateStatus)))
	mux.Handle("GET /v1/workflows/{id}/runs", requireAuth(http.HandlerFunc(runHandler.ListByWorkflow)))

	mux.Handle("POST /v1/jobs", requireAuth(http.HandlerFunc(jobHandler.Enqueue)))
	mux.Handle("POST /v1/jobs/claim", requireAuth(http.HandlerFunc(jobHandler.Claim)))
	mux.Handle("POST /v1/jobs/{id}/complete", requireAuth(http.HandlerFunc(jobHandler.Complete)))
	mux.Handle("POST /v1/jobs/{id}/fail", requireAuth(http.HandlerFunc(jobHandler.Fail)))
	mux.Handle("GET /v1/jobs", requireAuth(http.HandlerFunc(jobHandler.List)))

	mux.Handle("POST /v1/tickets", requireAuth(http.HandlerFunc(ticketHandler.Create)))
	mux.Handle("GET /v1/orgs/{org_id}/tickets", requireAuth(http.HandlerFunc(ticketHandler.ListByOrg)))
	mux.Handle("POST /v1/tickets/{id}/assign", requireAuth(http.HandlerFunc(ticketHandler.Assign)))
	mux.Handle("POST /v1/tickets/{id}/status", requireAuth(http.HandlerFunc(ticketHandler.UpdateStatus)))
	mux.Handle("POST /v1/tickets/{id}/comments", requireAuth(http.HandlerFunc(ticketHandler.AddComment)))
	mux.Handle("GET /v1/tickets/{id}/comments", requireAuth(http.HandlerFunc(ticketHandler.ListComments)))

	mux.Handle("POST /v1/workflows", requireAuth(http.HandlerFunc(workflowHandler.Create)))
	// Queries tolerate anonymous callers and return empty results.
	mux.Handle("GET /v1/workflows", optionalAuth(http.HandlerFunc(workflowHandler.List)))
	mux.Handle("GET /v1/workflows/{id}", optionalAuth(http.HandlerFunc(workflowHandler.Get)))
	mux.Handle("PATCH /v1/workflows/{id}", requireAuth(http.HandlerFunc(workflowHandler.Update)))
	mux.Handle("DELETE /v1/workflows/{id}", requireAuth(http.HandlerFunc(workflowHandler.Delete)))

	limiter := ratelimit.NewLimiter(ratelimit.LoadConfig())

	var handler http.Handler = mux
	handler = corsMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = ratelimit.Middleware(limiter)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		db:      database,
		limiter: limiter,
	}
}

// Handler exposes the server's root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// stops or fails.
func (s *Server) Start() error {
	log.Printf("server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each request with method, path, status and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}

// corsMiddleware allows browser clients from any origin. The editor is a
// separate origin in every deployment.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Webhook-Secret")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
