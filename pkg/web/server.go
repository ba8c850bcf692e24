// Package web serves the bear's control surface: a JSON API, Prometheus
// metrics and a WebSocket that streams state, GPIO levels and logs.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-ruxpin/internal/log"
	"github.com/teslashibe/go-ruxpin/pkg/actuator"
	"github.com/teslashibe/go-ruxpin/pkg/bear"
	"github.com/teslashibe/go-ruxpin/pkg/hub"
	"github.com/teslashibe/go-ruxpin/pkg/metrics"
	"github.com/teslashibe/go-ruxpin/pkg/protocol"
)

// Broadcast defaults.
const (
	DefaultStateInterval = 100 * time.Millisecond
	DefaultGPIOInterval  = time.Second
	shutdownTimeout      = 5 * time.Second
)

// Bear is the orchestrator surface the server drives.
type Bear interface {
	State() bear.State
	Phrases() map[string]string
	Speak(ctx context.Context, text string) error
	Play(ctx context.Context, sound string) error
	UpdatePositions(ctx context.Context, eyes, mouth *actuator.State) (bear.State, error)
	SetVolume(ctx context.Context, level int) error
	SetBlinkEnabled(enabled bool)
}

// GPIO reports pin levels for the status endpoints.
type GPIO interface {
	Backend() string
	PinStates() map[int]bool
}

// Config configures a Server.
type Config struct {
	Addr      string
	Version   string
	SoundsDir string
	Debug     bool

	Bear    Bear
	GPIO    GPIO
	Metrics *metrics.Metrics

	// SetLogLevel handles set_log_level messages. Nil rejects them.
	SetLogLevel func(level string) error

	StateInterval time.Duration
	GPIOInterval  time.Duration
	Logger        *slog.Logger
}

// Server is the HTTP and WebSocket server.
type Server struct {
	cfg    Config
	app    *fiber.App
	hub    *hub.Hub
	logger *slog.Logger

	// ctx bounds performances started from WebSocket messages. It is set
	// by Serve before the listener accepts connections.
	ctx context.Context
}

// New creates a Server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Bear == nil {
		return nil, errors.New("web: bear is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StateInterval <= 0 {
		cfg.StateInterval = DefaultStateInterval
	}
	if cfg.GPIOInterval <= 0 {
		cfg.GPIOInterval = DefaultGPIOInterval
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "web"),
		ctx:    context.Background(),
	}

	hubOpts := []hub.Option{hub.WithLogger(cfg.Logger)}
	if cfg.Metrics != nil {
		hubOpts = append(hubOpts, hub.WithCountObserver(func(n int) {
			cfg.Metrics.WSClients.Set(float64(n))
		}))
	}
	s.hub = hub.New("control", hubOpts...)

	app := fiber.New(fiber.Config{
		AppName:               "ruxpin",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/phrases", s.handlePhrases)
	api.Get("/gpio", s.handleGPIO)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
	if cfg.SoundsDir != "" {
		app.Static("/sounds", cfg.SoundsDir)
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s, nil
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the WebSocket broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts the server down and
// disconnects every WebSocket client. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.ctx = ctx
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error { return s.broadcastLoop(gctx, s.cfg.StateInterval, s.broadcastState) })
	if s.cfg.GPIO != nil {
		g.Go(func() error { return s.broadcastLoop(gctx, s.cfg.GPIOInterval, s.broadcastGPIO) })
	}
	g.Go(func() error {
		s.logger.Info("web server listening", "addr", ln.Addr().String())
		return s.app.Listener(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) broadcastLoop(ctx context.Context, every time.Duration, fn func()) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.hub.ClientCount() > 0 {
				fn()
			}
		}
	}
}

func (s *Server) broadcastState() {
	s.broadcast(protocol.NewStateMessage(s.cfg.Bear.State()))
}

func (s *Server) broadcastGPIO() {
	s.broadcast(protocol.NewGPIOStatusMessage(s.cfg.GPIO.PinStates()))
}

func (s *Server) broadcast(msg protocol.Outbound) {
	if err := s.hub.BroadcastJSON(msg); err != nil {
		s.logger.Error("failed to encode broadcast", "type", msg.Type, "error", err)
	}
}

// PublishLog streams a log record to connected clients. Records from the hub
// itself are skipped so a full queue cannot feed back into itself.
func (s *Server) PublishLog(rec log.Record) {
	if rec.Attrs["component"] == "hub" || s.hub.ClientCount() == 0 {
		return
	}
	s.broadcast(protocol.NewLogMessage(rec))
}
