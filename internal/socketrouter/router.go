package socketrouter

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loool999/browser-test-2/internal/browser"
	"github.com/loool999/browser-test-2/internal/clock"
	"github.com/loool999/browser-test-2/internal/metrics"
	"github.com/loool999/browser-test-2/internal/session"
)

// Router upgrades inbound HTTP connections to websockets and dispatches the
// control protocol from spec.md §4.5 against a shared Browser Pool and
// Session Binder. One Router serves every client; state specific to a
// single connection lives on *socket.
type Router struct {
	pool     *browser.Pool
	sessions *session.Binder
	clock    clock.Clock
	logger   *slog.Logger
	metrics  metrics.Sink
	upgrader websocket.Upgrader

	defaultURL        string
	screenshotFormat  string
	screenshotQuality int

	mu      sync.Mutex
	sockets map[string]*socket
}

// Config configures a new Router.
type Config struct {
	Pool              *browser.Pool
	Sessions          *session.Binder
	Clock             clock.Clock
	Logger            *slog.Logger
	Metrics           metrics.Sink
	CORSOrigin        string
	DefaultURL        string
	ScreenshotFormat  string
	ScreenshotQuality int
}

// New builds a Router. CORSOrigin "*" allows any origin, matching spec.md
// §6's CORS_ORIGIN default.
func New(cfg Config) *Router {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	origin := cfg.CORSOrigin
	return &Router{
		pool:              cfg.Pool,
		sessions:          cfg.Sessions,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		defaultURL:        cfg.DefaultURL,
		screenshotFormat:  cfg.ScreenshotFormat,
		screenshotQuality: cfg.ScreenshotQuality,
		sockets:           make(map[string]*socket),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return origin == "*" || r.Header.Get("Origin") == origin
			},
		},
	}
}

// ServeHTTP upgrades the connection and starts the socket's read/write
// pumps, mirroring the teacher pack's EventStream.HandleWebSocket.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}

	sock := &socket{
		id:     uuid.New().String(),
		conn:   conn,
		router: rt,
		send:   make(chan []byte, 32),
		frames: make(chan []byte, 8),
	}

	if rt.sessions != nil {
		token := r.URL.Query().Get("token")
		sess := rt.sessions.GetOrCreate(token, r.RemoteAddr, r.UserAgent())
		sock.sessionID = sess.ID
	}

	rt.mu.Lock()
	rt.sockets[sock.id] = sock
	rt.mu.Unlock()

	rt.logger.Info("socket connected", slog.String("socket_id", sock.id), slog.String("remote_addr", r.RemoteAddr))

	go sock.writePump()
	sock.readPump()
}

func (rt *Router) removeSocket(sock *socket) {
	rt.mu.Lock()
	delete(rt.sockets, sock.id)
	rt.mu.Unlock()
}

// SocketCount returns the number of currently connected sockets.
func (rt *Router) SocketCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.sockets)
}

// Shutdown closes every live socket and its bound browser.
func (rt *Router) Shutdown() {
	rt.mu.Lock()
	sockets := make([]*socket, 0, len(rt.sockets))
	for _, s := range rt.sockets {
		sockets = append(sockets, s)
	}
	rt.mu.Unlock()

	for _, s := range sockets {
		s.teardown("server shutdown")
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)
