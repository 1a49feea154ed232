// Package server hosts the HTTP/WebSocket front end for the diagnosis
// dialogue: spec §6.3's /ws/chat protocol plus a health check.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dbdiag/dbdiag/internal/dialogue"
)

// Config holds server configuration.
type Config struct {
	Host     string
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Server is the dbdiag chat-dialogue web server.
type Server struct {
	cfg        Config
	manager    *dialogue.Manager
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server bound to the given dialogue Manager. manager may be
// nil only in tests exercising routes that don't require it (e.g. the
// health check).
func New(cfg Config, manager *dialogue.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/ws/chat", s.handleChatSocket)

	return r
}

// Router returns the chi router, exposed for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured host and port.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("dbdiag web server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
