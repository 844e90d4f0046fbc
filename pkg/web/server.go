// Package web hosts the verification content in a browser shell page and
// exposes the capture overlay over HTTP.
//
// The shell page frames the content URL and relays between the frame and
// the server over a websocket: messages the content posts are forwarded
// to the server, and "eval" commands run injected script in the shell,
// where the native entry point posts the payload into the frame.
package web

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-verify/pkg/camera"
	"github.com/teslashibe/go-verify/pkg/capture"
	"github.com/teslashibe/go-verify/pkg/hub"
	"github.com/teslashibe/go-verify/pkg/verify"
)

//go:embed shell.html
var shellPage []byte

// ErrNoContent is returned when script is injected while no shell page is
// connected.
var ErrNoContent = errors.New("web: no content connected")

// Command ops sent to the shell page.
const (
	OpLoad = "load"
	OpEval = "eval"
)

// Command is one instruction for the shell page.
type Command struct {
	Op     string `json:"op"`
	URL    string `json:"url,omitempty"`
	Script string `json:"script,omitempty"`
}

// Server is the content host.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger
	debug  bool

	content  *hub.Hub
	options  *camera.Manager
	mediator *capture.Mediator

	mu  sync.RWMutex
	url string

	// OnSession returns the bridge state for /api/session.
	OnSession func() verify.Session
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithDebug enables request logging.
func WithDebug(debug bool) Option {
	return func(s *Server) {
		s.debug = debug
	}
}

// WithCamera exposes m through /api/camera.
func WithCamera(m *camera.Manager) Option {
	return func(s *Server) {
		s.options = m
	}
}

// WithMediator exposes the active overlay through /api/capture.
func WithMediator(m *capture.Mediator) Option {
	return func(s *Server) {
		s.mediator = m
	}
}

// NewServer creates a content host listening on addr.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		logger:  slog.Default(),
		options: camera.NewManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.content = hub.New("content", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "verifyhost",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if s.debug {
		app.Use(logger.New())
	}

	app.Get("/", s.handleShell)

	api := app.Group("/api")
	api.Get("/session", s.handleSession)
	api.Get("/capture", s.handleCapture)
	api.Post("/capture/shutter", s.handleShutter)
	api.Post("/capture/torch", s.handleTorch)
	api.Post("/capture/fallback", s.handleFallback)
	api.Post("/capture/exit", s.handleExit)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handlePutCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/content", websocket.New(s.handleContentWS))

	s.app = app
	return s
}

// Start runs the server until ctx ends or listening fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx ends or serving fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.content.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("content host listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Load points every connected shell, and every future one, at url.
func (s *Server) Load(url string) error {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()

	return s.content.BroadcastJSON(Command{Op: OpLoad, URL: url})
}

// InjectScript runs script in the connected shells.
func (s *Server) InjectScript(script string) error {
	if s.content.ClientCount() == 0 {
		return ErrNoContent
	}
	return s.content.BroadcastJSON(Command{Op: OpEval, Script: script})
}

// Messages returns what the content posted.
func (s *Server) Messages() <-chan []byte {
	return s.content.Inbound()
}

// URL returns the content URL last loaded.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Verify Server implements ContentHost at compile time.
var _ verify.ContentHost = (*Server)(nil)
