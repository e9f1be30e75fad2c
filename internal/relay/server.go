package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/signaling"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultAddr is where the relay listens unless told otherwise.
const DefaultAddr = ":8080"

const shutdownTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxMessageSize,
	WriteBufferSize: maxMessageSize,

	// Native clients send no Origin; browsers are not a target.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewHandler routes /health and /ws for hub. The hub must be running.
func NewHandler(hub *Hub, logger *slog.Logger) http.Handler {
	logger = logging.Component(logger, "relay")

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Signaling relay is healthy."))
	})
	r.Get("/ws", serveWs(hub, logger))
	return r
}

func serveWs(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "error", err)
			return
		}

		id := uuid.NewString()
		client := &Client{
			ID:     id,
			hub:    hub,
			conn:   conn,
			logger: logger.With("client", id),
			send:   make(chan *signaling.Message, sendBuffer),
		}
		if !hub.Register(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// Server runs a hub behind an HTTP listener.
type Server struct {
	Addr   string
	logger *slog.Logger
}

// NewServer creates a relay server for addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Addr: addr, logger: logger}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := NewHub(s.logger)
	go hub.Run(ctx)

	srv := &http.Server{
		Handler:           NewHandler(hub, s.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("relay listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
