// Package gateway implements the two WebSocket servers of gatewatch.
//
// Both servers share one implementation and differ only by Config:
//   - external (9001): every inbound frame goes to a FrameHandler and any
//     reply is written back before the next frame is read.
//   - internal (3001): a welcome frame is sent on open; inbound frames are
//     read and discarded.
//
// Each accepted socket is served by its own goroutine for its whole lifetime.
// The connection is added to the server's registry when it opens and removed
// exactly once when it closes, before the goroutine returns.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vesaa/gatewatch/internal/models"
	"github.com/vesaa/gatewatch/internal/registry"
	"github.com/vesaa/gatewatch/internal/router"
)

// FrameHandler processes one inbound frame and returns an optional reply.
type FrameHandler interface {
	Handle(ctx context.Context, raw []byte) ([]byte, error)
}

// SessionRecorder receives a record of every closed connection.
// Record must not block.
type SessionRecorder interface {
	Record(s models.Session)
}

// Config selects the behaviour of one gateway server.
type Config struct {
	Server models.ServerID
	Addr   string

	// Welcome is sent as a text frame as soon as a connection opens.
	Welcome string
	// Handler receives inbound frames; nil discards them.
	Handler FrameHandler
	// Recorder is optional.
	Recorder SessionRecorder

	// MaxMessageBytes caps inbound frame size; 0 means no limit.
	MaxMessageBytes int64
}

// Server is one WebSocket gateway.
type Server struct {
	cfg      Config
	registry *registry.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	engine   *gin.Engine

	// ctx is cancelled by Shutdown; every connection watches it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	httpSrv *http.Server
	wg      sync.WaitGroup
}

// New creates a gateway bound to reg. The registry must belong to cfg.Server.
func New(cfg Config, reg *registry.Registry, logger *slog.Logger) (*Server, error) {
	if reg == nil {
		return nil, errors.New("gateway: registry is required")
	}
	if reg.Server() != cfg.Server {
		return nil, fmt.Errorf("gateway: registry for %s given to %s server", reg.Server(), cfg.Server)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		registry: reg,
		logger:   logger.With("server", string(cfg.Server)),
		upgrader: websocket.Upgrader{
			// No authentication or origin policy: any client may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/*path", s.handleUpgrade)
	s.engine = engine
	return s, nil
}

// Handler returns the HTTP handler that upgrades requests on any path.
func (s *Server) Handler() http.Handler { return s.engine }

// ServerID returns which gateway this is.
func (s *Server) ServerID() models.ServerID { return s.cfg.Server }

// ListenAndServe listens on cfg.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%s gateway listen %s: %w", s.cfg.Server, s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return http.ErrServerClosed
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info("gateway listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting, closes every open connection with a normal
// closure frame and waits for their goroutines to finish. The registry is
// empty when it returns nil.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.httpSrv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.cancel()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("%s gateway shutdown: %w", s.cfg.Server, ctx.Err())
	}
	s.logger.Info("gateway stopped")
	return err
}

// handleUpgrade is the Connecting state: it performs the handshake and hands
// the socket to serveConn.
func (s *Server) handleUpgrade(c *gin.Context) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		c.String(http.StatusServiceUnavailable, "server shutting down")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written an HTTP error response
		s.logger.Debug("websocket handshake failed", "remote", c.Request.RemoteAddr, "error", err)
		return
	}
	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	meta := models.Connection{
		ID:         uuid.NewString(),
		Server:     s.cfg.Server,
		RemoteAddr: c.Request.RemoteAddr,
		OpenedAt:   time.Now(),
	}
	s.serveConn(newConn(meta, ws))
}

// serveConn runs one connection from Open to Closed.
func (s *Server) serveConn(cn *conn) {
	log := s.logger.With("conn_id", cn.meta.ID, "remote", cn.meta.RemoteAddr)

	if err := s.registry.Add(cn.meta); err != nil {
		log.Error("registry rejected connection", "error", err)
		cn.sendClose(websocket.CloseInternalServerErr, "")
		cn.closeWith(func() {})
		return
	}
	cn.setState(StateOpen)

	reason := "peer closed"
	defer func() {
		if r := recover(); r != nil {
			log.Error("connection loop panicked", "panic", r)
			reason = "panic"
		}
		s.release(cn, reason, log)
	}()

	go s.watchShutdown(cn, log)

	switch s.cfg.Server {
	case models.ServerExternal:
		log.Info("External API gateway connection established", "open", s.registry.Count())
	default:
		log.Info("Agent connection established", "open", s.registry.Count())
	}

	if s.cfg.Welcome != "" {
		if err := cn.writeText([]byte(s.cfg.Welcome)); err != nil {
			log.Error("sending welcome failed", "error", err)
			reason = "write error"
			return
		}
	}

	for frame := range cn.Frames() {
		if s.cfg.Handler == nil {
			continue
		}
		reply, err := s.cfg.Handler.Handle(s.ctx, frame)
		if err != nil {
			// malformed frames are logged by the router itself
			if !errors.Is(err, router.ErrMalformedMessage) {
				log.Error("frame handling failed", "error", err)
			}
			continue
		}
		if reply == nil {
			continue
		}
		if err := cn.writeText(reply); err != nil {
			log.Error("writing reply failed", "error", err)
			reason = "write error"
			return
		}
	}

	reason = s.classifyReadErr(cn, log)
}

// classifyReadErr logs why the frame sequence ended and returns a short
// close reason.
func (s *Server) classifyReadErr(cn *conn, log *slog.Logger) string {
	err := cn.readErr
	switch {
	case err == nil:
		return "closed"
	case cn.State() != StateOpen:
		// closed locally (shutdown) while the read was pending
		return "shutdown"
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		log.Debug("peer closed connection", "error", err)
		return "peer closed"
	default:
		log.Error("transport error", "error", err)
		return "transport error"
	}
}

// watchShutdown closes cn when the server shuts down.
func (s *Server) watchShutdown(cn *conn, log *slog.Logger) {
	select {
	case <-cn.done:
	case <-s.ctx.Done():
		cn.sendClose(websocket.CloseGoingAway, "server shutting down")
		s.release(cn, "shutdown", log)
	}
}

// release is the Closing to Closed transition. The registry entry is
// removed exactly once no matter how many paths race to close.
func (s *Server) release(cn *conn, reason string, log *slog.Logger) {
	closed := cn.closeWith(func() {
		s.registry.Remove(cn.meta.ID)
	})
	if !closed {
		return
	}

	log.Info("connection closed",
		"reason", reason,
		"frames", cn.frames.Load(),
		"open", s.registry.Count(),
	)

	if s.cfg.Recorder != nil {
		s.cfg.Recorder.Record(models.Session{
			ConnID:      cn.meta.ID,
			Server:      cn.meta.Server,
			RemoteAddr:  cn.meta.RemoteAddr,
			OpenedAt:    cn.meta.OpenedAt,
			ClosedAt:    time.Now(),
			Frames:      cn.frames.Load(),
			CloseReason: reason,
		})
	}
}
