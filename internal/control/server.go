// Package control exposes a viewing session over a WebSocket so it can be
// driven without the window: status is pushed to every client and clients
// send snapshot, recording and shutdown commands.
package control

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/junsooki/camstream/internal/record"
	"github.com/junsooki/camstream/internal/transport"
)

// DefaultPingInterval keeps idle connections alive through proxies.
const DefaultPingInterval = 25 * time.Second

// Controller is the session surface the control server drives.
type Controller interface {
	State() transport.State
	TakeSnapshot(img image.Image) (string, error)
	StartRecording(fps int, size image.Point) (*record.Session, error)
	StopRecording(rec *record.Session) error
	Recording() *record.Session
}

// Options configures a Server.
type Options struct {
	Controller Controller
	// RecordFPS and RecordSize apply when start-recording omits them.
	RecordFPS    int
	RecordSize   image.Point
	PingInterval time.Duration
	// OnShutdown is called once when a client sends shutdown.
	OnShutdown func()
	Logger     *slog.Logger
}

// Server is the WebSocket control endpoint.
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*client]struct{}
	shutdown sync.Once
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewServer creates a control server for opts.Controller.
func NewServer(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("control: controller is required")
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*client]struct{}),
	}, nil
}

// Handler returns the HTTP handler serving the endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves the endpoint on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves the endpoint on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hs.Shutdown(shutdownCtx)
		s.closeAll()
	})
	defer stop()

	s.logger.Info("control: listening", "addr", ln.Addr().String())
	if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control serve: %w", err)
	}
	return nil
}

// BroadcastStatus pushes a status message with state to every client.
func (s *Server) BroadcastStatus(state transport.State) {
	msg := s.status(state)
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.logger.Debug("control: dropping client", "error", err)
			c.close()
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) status(state transport.State) Message {
	msg := Message{Type: TypeStatus, State: state.String(), Timestamp: time.Now().UnixMilli()}
	if rec := s.opts.Controller.Recording(); rec != nil {
		msg.Recording = true
		msg.ID = rec.ID.String()
		msg.Path = rec.Path
	}
	return msg
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("control: websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, done: make(chan struct{})}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("control: client connected", "remote", r.RemoteAddr, "clients", n)

	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.clients, c)
		n := len(s.clients)
		s.mu.Unlock()
		s.logger.Info("control: client disconnected", "remote", r.RemoteAddr, "clients", n)
	}()

	if err := c.send(s.status(s.opts.Controller.State())); err != nil {
		return
	}
	go s.pingLoop(c)
	s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("control: read error", "error", err)
				}
			}
			return
		}
		reply := s.dispatch(msg)
		if reply.Type == "" {
			continue
		}
		if err := c.send(reply); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(msg Message) Message {
	ctl := s.opts.Controller
	switch msg.Type {
	case TypeSnapshot:
		path, err := ctl.TakeSnapshot(nil)
		if err != nil {
			return errorMessage(err)
		}
		return Message{Type: TypeSnapshotSaved, Path: path}

	case TypeStartRecording:
		fps, size := msg.FPS, image.Pt(msg.Width, msg.Height)
		if fps == 0 {
			fps = s.opts.RecordFPS
		}
		if size.X == 0 && size.Y == 0 {
			size = s.opts.RecordSize
		}
		rec, err := ctl.StartRecording(fps, size)
		if err != nil {
			return errorMessage(err)
		}
		return Message{Type: TypeRecordingStarted, ID: rec.ID.String(), Path: rec.Path, FPS: rec.FPS, Width: rec.Size.X, Height: rec.Size.Y}

	case TypeStopRecording:
		rec := ctl.Recording()
		if rec == nil {
			return errorMessage(record.ErrNoRecording)
		}
		if err := ctl.StopRecording(rec); err != nil {
			return errorMessage(err)
		}
		st := rec.Stats()
		return Message{Type: TypeRecordingStopped, ID: rec.ID.String(), Path: rec.Path, Written: st.Written, Dropped: st.Dropped}

	case TypeShutdown:
		s.shutdown.Do(func() {
			s.logger.Info("control: shutdown requested")
			if s.opts.OnShutdown != nil {
				go s.opts.OnShutdown()
			}
		})
		return Message{Type: TypeShuttingDown}

	case TypePing:
		return Message{Type: TypePong, Timestamp: time.Now().UnixMilli()}

	case TypePong:
		// heartbeat response, nothing to do
		return Message{}
	}
	return Message{Type: TypeError, Msg: fmt.Sprintf("unknown message type %q", msg.Type)}
}

func errorMessage(err error) Message {
	return Message{Type: TypeError, Msg: err.Error()}
}

func (s *Server) pingLoop(c *client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(Message{Type: TypePing}); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.close()
	}
}
