// Package gateway exposes the HTTP and websocket surface: blocking chat,
// streaming chat over websockets, session creation, and health probes, with
// admission control and graceful shutdown around them.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/clawd-gateway/pkg/admission"
	"github.com/go-go-golems/clawd-gateway/pkg/bridge"
	"github.com/go-go-golems/clawd-gateway/pkg/chat"
	"github.com/go-go-golems/clawd-gateway/pkg/config"
	"github.com/go-go-golems/clawd-gateway/pkg/llm"
	"github.com/go-go-golems/clawd-gateway/pkg/store"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	cfg       *config.Config
	backend   llm.Backend
	prompts   *chat.PromptBuilder
	sessions  *store.Store
	admission *admission.Controller
	bridge    *bridge.Bridge

	handler  http.Handler
	upgrader websocket.Upgrader

	baseCtx context.Context
}

func New(cfg *config.Config, backend llm.Backend, sessions *store.Store, adm *admission.Controller, br *bridge.Bridge) *Server {
	s := &Server{
		cfg:       cfg,
		backend:   backend,
		prompts:   chat.NewPromptBuilder(cfg.BotName, cfg.SystemPrompt),
		sessions:  sessions,
		admission: adm,
		bridge:    br,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /llm/health", s.handleLLMHealth)
	mux.HandleFunc("POST /session/new", s.handleNewSession)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /ws/chat", s.handleWS)

	s.handler = chainMiddleware(
		recoverMiddleware,
		logMiddleware,
		s.admissionMiddleware,
	)(mux)
	return s
}

// Handler returns the full middleware-wrapped handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then drains connections gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      300 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("component", "gateway").Str("addr", s.cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Str("component", "gateway").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// requestContext is the lifetime for work spawned from a handler. Websocket
// handlers outlive their upgrade request, so they hang off the server's base
// context instead.
func (s *Server) requestContext() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}
