// Package api provides the HTTP control surface and the main server bootstrap
// for asesorbot.
//
// It exposes RESTful endpoints for sending messages, registering customers,
// triggering real-estate inquiries, and managing the blocked-contact list.
// Run wires the messaging backend, store, generator and orchestrator together
// and serves until interrupted.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inmolabs/asesorbot/internal/conversation"
	"github.com/inmolabs/asesorbot/internal/genai"
	"github.com/inmolabs/asesorbot/internal/messaging"
	"github.com/inmolabs/asesorbot/internal/store"
	"github.com/inmolabs/asesorbot/internal/twiliowhatsapp"
	"github.com/inmolabs/asesorbot/internal/whatsapp"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default API server listen address
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// BackendWhatsmeow selects the whatsmeow messaging backend
	BackendWhatsmeow = "whatsmeow"
	// BackendTwilio selects the Twilio messaging backend
	BackendTwilio = "twilio"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr    string
	Backend string
	DSN     string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithMessagingBackend selects the messaging backend ("whatsmeow" or "twilio").
func WithMessagingBackend(backend string) Option {
	return func(o *Opts) { o.Backend = backend }
}

// WithStoreDSN sets the application database connection string.
func WithStoreDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Server holds the wired modules behind the HTTP handlers.
type Server struct {
	addr       string
	msgService messaging.Service
	st         store.Store
	orch       *conversation.Orchestrator
	httpServer *http.Server
}

// Run bootstraps asesorbot: store, generator, messaging backend, orchestrator
// and HTTP server. It blocks until SIGINT/SIGTERM and shuts down gracefully.
func Run(waOpts []whatsapp.Option, genaiOpts []genai.Option, orchOpts []conversation.Option, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultAddr, Backend: BackendWhatsmeow}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.NewFromDSN(cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	gaClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	msgService, err := buildMessagingService(cfg.Backend, waOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging backend: %w", err)
	}

	orch := conversation.NewOrchestrator(msgService, st, gaClient, orchOpts...)

	server := &Server{
		addr:       cfg.Addr,
		msgService: msgService,
		st:         st,
		orch:       orch,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	go orch.Run(ctx)

	mux := http.NewServeMux()
	server.registerRoutes(mux)

	server.httpServer = &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", cfg.Addr, "backend", cfg.Backend)
		if err := server.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := server.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	if err := msgService.Stop(); err != nil {
		slog.Error("Messaging service stop failed", "error", err)
	}
	slog.Info("API server stopped")
	return nil
}

// buildMessagingService constructs the selected messaging backend.
func buildMessagingService(backend string, waOpts []whatsapp.Option) (messaging.Service, error) {
	switch backend {
	case BackendTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case BackendWhatsmeow, "":
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown messaging backend: %s", backend)
	}
}

// registerRoutes mounts the control-surface endpoints. The Twilio inbound
// webhook is only mounted when that backend is active.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/messages", s.sendMessageHandler)
	mux.HandleFunc("/v1/register", s.registerHandler)
	mux.HandleFunc("/v1/real-estate", s.inquiryHandler)
	mux.HandleFunc("/v1/blacklist", s.blacklistHandler)
	mux.HandleFunc("/health", s.healthHandler)

	if twilioSvc, ok := s.msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("/v1/twilio/webhook", twilioSvc.WebhookHandler)
		slog.Debug("Twilio inbound webhook mounted", "path", "/v1/twilio/webhook")
	}
}
