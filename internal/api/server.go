package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/que-core/internal/auth"
	"github.com/nerrad567/que-core/internal/history"
	"github.com/nerrad567/que-core/internal/infrastructure/config"
	"github.com/nerrad567/que-core/internal/infrastructure/logging"
	"github.com/nerrad567/que-core/internal/poller"
	"github.com/nerrad567/que-core/internal/system"
)

// gracefulShutdownTimeout bounds Close.
const gracefulShutdownTimeout = 10 * time.Second

// SystemSource exposes the synced systems. *poller.Poller satisfies it.
type SystemSource interface {
	Systems() []*system.System
	System(serial string) (*system.System, bool)
	Status(serial string) (poller.Status, bool)
}

// HistoryStore reads attribute history and the command log.
// *history.Repository satisfies it.
type HistoryStore interface {
	History(ctx context.Context, q history.Query) ([]history.Entry, error)
	Commands(ctx context.Context, serial string, limit int) ([]history.CommandRecord, error)
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Systems  SystemSource
	Executor poller.Executor
	Keyring  *auth.Keyring
	Issuer   *auth.Issuer

	// History is optional; the history endpoints return 503 without it.
	History HistoryStore

	// Hub is optional; a new one is created when nil. Register it as a
	// poller listener to stream changes.
	Hub *Hub

	Version string
}

// Server is the HTTP API.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	systems  SystemSource
	executor poller.Executor
	history  HistoryStore
	keyring  *auth.Keyring
	issuer   *auth.Issuer
	hub      *Hub
	version  string

	server *http.Server
	cancel context.CancelFunc
}

// New validates deps and creates a Server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Systems == nil:
		return nil, fmt.Errorf("system source is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("command executor is required")
	case deps.Issuer == nil:
		return nil, fmt.Errorf("token issuer is required")
	}

	keyring := deps.Keyring
	if keyring == nil {
		keyring = &auth.Keyring{}
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		systems:  deps.Systems,
		executor: deps.Executor,
		history:  deps.History,
		keyring:  keyring,
		issuer:   deps.Issuer,
		hub:      hub,
		version:  deps.Version,
	}, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start runs the hub and begins listening in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close stops the hub and shuts the listener down, waiting up to 10s for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
