package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/flow"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/config"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/database"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/logging"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/metrics"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BrokerView is the read surface of the subscription broker.
// *broker.Broker satisfies it.
type BrokerView interface {
	Stats() broker.Stats
	Cache() *broker.Cache
	ActiveServices() []string
	IsConnected() bool
}

// FlowRuntime is what the API needs from the flow host. *flow.Runtime
// satisfies it.
type FlowRuntime interface {
	Deploy(ctx context.Context, cfgs []node.Config) (flow.DeployResult, error)
	Configs() []node.Config
	Nodes() []node.Info
	Node(id string) (node.Info, error)
	Input(ctx context.Context, nodeID string, msg node.Message) error
	Reconcile(ctx context.Context) (virtual.Plan, error)
}

// BusWriter writes values to the bus. *bus.Client satisfies it.
type BusWriter interface {
	Write(ctx context.Context, addr bus.Address, value any) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Broker    BrokerView
	Flows     FlowRuntime
	Bus       BusWriter
	Metrics   *metrics.Metrics
	DB        *database.DB // optional, for pool statistics
	Hub       *Hub         // optional; created when nil
	FlowsFile string       // deploys are saved here when set
	Version   string
}

// Server is the HTTP API server of the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	broker    BrokerView
	flows     FlowRuntime
	bus       BusWriter
	metrics   *metrics.Metrics
	db        *database.DB
	flowsFile string
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, broker, flows)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if deps.Flows == nil {
		return nil, fmt.Errorf("flow runtime is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		broker:    deps.Broker,
		flows:     deps.Flows,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		db:        deps.DB,
		flowsFile: deps.FlowsFile,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
		tickets:   newTicketStore(),
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub, for wiring it into the flow runtime.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, builds the router and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
