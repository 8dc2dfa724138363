// Package web exposes the resolution service and batch provenance over
// HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/civitas-chicago/civitas/internal/resolve"
	"github.com/civitas-chicago/civitas/internal/store"
)

// Server is the HTTP front end over the canonical store.
type Server struct {
	store      store.Store
	resolver   *resolve.Resolver
	log        *slog.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, st store.Store, res *resolve.Resolver, log *slog.Logger) *Server {
	s := &Server{
		store:    st,
		resolver: res,
		log:      log,
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/resolve", s.handleResolve).Methods("GET")
	api.HandleFunc("/batches", s.handleBatches).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	s.router.Use(s.requestLogging)
}

// Start runs the server until SIGINT or SIGTERM, then shuts down
// gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s.log.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", "error", err)
		}
	}()

	<-stop
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
