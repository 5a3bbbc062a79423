package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/slotbox"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxControlBody bounds JSON request bodies (channel selection).
	maxControlBody = 1 << 10

	// minReapInterval keeps the reaper from spinning on tiny idle timeouts.
	minReapInterval = 100 * time.Millisecond

	// CodeNoSession is the error code for requests naming an unknown handle.
	CodeNoSession = "no_session"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// OpenResponse is returned by the open route.
type OpenResponse struct {
	Session  string             `json:"session"`
	Endpoint slotbox.EndpointID `json:"endpoint"`
}

// BindRequest is the body of the channel route.
type BindRequest struct {
	Channel slotbox.ChannelID `json:"channel"`
}

// WriteResponse is returned by a successful write.
type WriteResponse struct {
	Written int `json:"written"`
}

// StatsResponse is returned by the stats route.
type StatsResponse struct {
	slotbox.Stats
	Handles int `json:"handles"`
}

// Server hosts a [slotbox.Store] on a unix socket or TCP address.
//
// The server is designed for graceful shutdown via context cancellation:
// when the context passed to [Server.Start] is done, in-flight requests get
// up to 5 seconds to finish and every open handle is closed.
type Server struct {
	store       *slotbox.Store
	network     string
	address     string
	idleTimeout time.Duration
	logger      *slog.Logger

	handles    *handleRegistry
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// NewServer creates a new [Server].
//
// Parameters:
//   - st: the Store to expose
//   - network: "unix" or "tcp"
//   - address: socket path or host:port
//   - idleTimeout: handles unused for this long are closed (0 disables reaping)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st *slotbox.Store, network, address string, idleTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		store:       st,
		network:     network,
		address:     address,
		idleTimeout: idleTimeout,
		logger:      logger,
		handles:     newHandleRegistry(),
		done:        make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving the slotbox routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/endpoints/{endpoint}/sessions", s.handleOpen)
	mux.HandleFunc("PUT /v1/sessions/{id}/channel", s.handleBind)
	mux.HandleFunc("POST /v1/sessions/{id}/message", s.handleWrite)
	mux.HandleFunc("GET /v1/sessions/{id}/message", s.handleRead)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleClose)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	return s.logRequests(mux)
}

// Start begins serving requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled. Use [Server.Done] to wait for shutdown to finish.
//
// A stale unix socket left behind by a previous run is removed before
// binding. Returns an error if the server fails to bind.
func (s *Server) Start(ctx context.Context) error {
	if s.network == "unix" {
		if err := removeStaleSocket(s.address); err != nil {
			return err
		}
	}

	// create listener first to verify availability synchronously
	ln, err := net.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s %s: %w", s.network, s.address, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	if s.idleTimeout > 0 {
		go s.reapLoop(ctx)
	}

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		if n := s.handles.closeAll(); n > 0 {
			s.logger.Info("closed open handles on shutdown", "handles", n)
		}
	}()

	s.logger.Info("listening", "network", s.network, "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed once the server has shut down after context cancellation.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// removeStaleSocket deletes a leftover unix socket file at path. Anything
// other than a socket is left alone and reported.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat socket path %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("socket path %s exists and is not a socket", path)
	}
	// a live server still answers on the socket
	if conn, err := net.DialTimeout("unix", path, 100*time.Millisecond); err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another server", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	return nil
}

func (s *Server) reapLoop(ctx context.Context) {
	interval := s.idleTimeout / 2
	if interval < minReapInterval {
		interval = minReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.handles.reap(s.idleTimeout) {
				s.logger.Info("closed idle handle", "session", id, "idle_timeout", s.idleTimeout.String())
			}
		}
	}
}

// handleOpen opens a session on the endpoint named in the path.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	ep, err := strconv.ParseUint(r.PathValue("endpoint"), 10, 32)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: endpoint %q is not an unsigned integer", slotbox.ErrInvalidArgument, r.PathValue("endpoint")))
		return
	}

	sess, err := s.store.Open(slotbox.EndpointID(ep))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.handles.add(sess)

	s.writeJSON(w, http.StatusCreated, OpenResponse{Session: sess.ID(), Endpoint: sess.Endpoint()})
}

// handleBind selects the channel for a handle.
func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req BindRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxControlBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed channel request: %v", slotbox.ErrInvalidArgument, err))
		return
	}

	var bindErr error
	if !s.handles.with(r.PathValue("id"), func(sess *slotbox.Session) {
		bindErr = sess.Bind(req.Channel)
	}) {
		s.writeNoSession(w, r.PathValue("id"))
		return
	}
	if bindErr != nil {
		s.writeError(w, bindErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWrite stores the request body as the channel's message.
//
// The body is read up to one byte past the buffer size so that oversized
// messages are rejected by the Store rather than silently truncated.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	msg, err := io.ReadAll(io.LimitReader(r.Body, int64(s.store.BufferSize())+1))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: reading message: %v", slotbox.ErrIOFailure, err))
		return
	}

	var (
		n        int
		writeErr error
	)
	if !s.handles.with(r.PathValue("id"), func(sess *slotbox.Session) {
		n, writeErr = sess.Write(msg)
	}) {
		s.writeNoSession(w, r.PathValue("id"))
		return
	}
	if writeErr != nil {
		s.writeError(w, writeErr)
		return
	}
	s.writeJSON(w, http.StatusOK, WriteResponse{Written: n})
}

// handleRead returns the stored message as the raw response body.
//
// The capacity query parameter is the caller's destination size; it
// defaults to the store's buffer size.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	capacity := s.store.BufferSize()
	if raw := r.URL.Query().Get("capacity"); raw != "" {
		c, err := strconv.ParseUint(raw, 10, 31)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: capacity %q is not a non-negative integer", slotbox.ErrInvalidArgument, raw))
			return
		}
		capacity = int(c)
	}
	// no message exceeds the buffer size
	if capacity > s.store.BufferSize() {
		capacity = s.store.BufferSize()
	}
	buf := make([]byte, capacity)

	var (
		n       int
		readErr error
	)
	if !s.handles.with(r.PathValue("id"), func(sess *slotbox.Session) {
		n, readErr = sess.Read(buf)
	}) {
		s.writeNoSession(w, r.PathValue("id"))
		return
	}
	if readErr != nil {
		s.writeError(w, readErr)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf[:n]); err != nil {
		s.logger.Error("failed to write message response", "error", err)
	}
}

// handleClose releases a handle.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !s.handles.remove(r.PathValue("id")) {
		s.writeNoSession(w, r.PathValue("id"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats returns store counters as JSON.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatsResponse{
		Stats:   s.store.Stats(),
		Handles: s.handles.count(),
	})
}

// handleEvents streams write events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// commit headers so clients see the stream open before the first write
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// statusFor maps a slotbox error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "invalid_argument", "io_failure":
		return http.StatusBadRequest
	case "invalid_state":
		return http.StatusConflict
	case "no_message", CodeNoSession:
		return http.StatusNotFound
	case "buffer_too_small":
		return http.StatusRequestEntityTooLarge
	case "out_of_memory":
		return http.StatusInsufficientStorage
	case "resource_exhausted", "closed":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := slotbox.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) writeNoSession(w http.ResponseWriter, id string) {
	s.writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error: fmt.Sprintf("session %q not found", id),
		Code:  CodeNoSession,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// logRequests tags each request with an ID and logs its outcome at debug
// level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rec.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(rec, r)

		s.logger.Debug("request handled",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	})
}

// statusRecorder captures the response status. It forwards Flush and exposes
// Unwrap so http.ResponseController reaches the underlying writer.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
