package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/byteom/scanstation/internal/adapters/web"
	"github.com/byteom/scanstation/internal/adapters/web/handlers"
	"github.com/byteom/scanstation/internal/adapters/web/middleware"
	"github.com/byteom/scanstation/internal/core/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr           string
	Session        ports.ScanSession
	WSManager      *web.WSManager
	SessionHandler *handlers.SessionHandler
	HistoryHandler *handlers.HistoryHandler
	CommandLimiter *middleware.RateLimiter
	srv            *http.Server
}

// NewServer creates a new web server. Command endpoints allow commandRate
// requests per second with commandBurst per client.
func NewServer(addr string, session ports.ScanSession, history ports.HistoryService, commandRate float64, commandBurst int) *Server {
	return &Server{
		Addr:           addr,
		Session:        session,
		WSManager:      web.NewWSManager(session),
		SessionHandler: handlers.NewSessionHandler(session),
		HistoryHandler: handlers.NewHistoryHandler(history),
		CommandLimiter: middleware.NewRateLimiter(commandRate, commandBurst),
	}
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(SetupRoutes(s), "scanstation-server")
}

// Run starts the server and the broadcaster.
func (s *Server) Run(ctx context.Context) error {
	s.WSManager.Start(ctx)

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown implementation
	go func() {
		<-ctx.Done()
		log.Println("Web Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web Server shutdown error: %v", err)
		}
	}()

	log.Printf("Web server listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
