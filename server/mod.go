// Package server implements the HTTP server that exposes the read endpoints
// of the ledger and the metrics.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/pollchain"
	"golang.org/x/xerrors"
)

type key int

const requestIDKey key = 0

// RequestIDHeader is the header that carries the identifier of a request. A
// request without one gets a new identifier.
const RequestIDHeader = "X-Request-Id"

const shutdownTimeout = 10 * time.Second

// HTTP is a server that dispatches the requests to the registered handlers.
type HTTP struct {
	sync.Mutex

	mux        *http.ServeMux
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	ln         net.Listener
}

// NewHTTP creates a new server that will listen on the address. An empty
// address uses a random free port.
func NewHTTP(listenAddr string) *HTTP {
	logger := pollchain.Logger.With().Str("role", "http server").Logger()

	mux := http.NewServeMux()

	return &HTTP{
		mux: mux,
		server: &http.Server{
			Handler:           tracing(nextRequestID)(logging(logger)(mux)),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger:     logger,
		listenAddr: listenAddr,
	}
}

// Listen opens the socket of the server.
func (h *HTTP) Listen() error {
	h.Lock()
	defer h.Unlock()

	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return xerrors.Errorf("failed to create conn '%s': %v", h.listenAddr, err)
	}

	h.ln = ln

	return nil
}

// Serve handles the requests until the context is done, and then shuts the
// server down gracefully. Listen must be called first.
func (h *HTTP) Serve(ctx context.Context) error {
	h.Lock()
	ln := h.ln
	h.Unlock()

	if ln == nil {
		return xerrors.New("server is not listening")
	}

	done := make(chan error, 1)

	go func() {
		<-ctx.Done()
		h.logger.Info().Msg("server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.server.SetKeepAlivesEnabled(false)
		done <- h.server.Shutdown(shutdownCtx)
	}()

	h.logger.Info().Msgf("server is ready to handle requests at http://%s", ln.Addr())

	err := h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return xerrors.Errorf("failed to serve: %v", err)
	}

	err = <-done
	if err != nil {
		return xerrors.Errorf("failed to shutdown: %v", err)
	}

	h.logger.Info().Msg("server stopped")

	return nil
}

// GetAddr returns the address the server is listening on, or nil.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// RegisterHandler registers the handler for the pattern, which follows the
// syntax of http.ServeMux.
func (h *HTTP) RegisterHandler(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// RequestID returns the identifier of the request.
func RequestID(r *http.Request) string {
	id, ok := r.Context().Value(requestIDKey).(string)
	if !ok {
		return "unknown"
	}

	return id
}

// ErrorResponse is the body returned when a request fails.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// WriteJSON writes the data as the JSON body of the response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		pollchain.Logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// WriteError writes an error response with the status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		RequestID: RequestID(r),
	})
}

func nextRequestID() string {
	return xid.New().String()
}

// statusWriter records the status code of the response.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// logging is a utility function that logs the http server events
func logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				logger.Info().Str("requestID", RequestID(r)).
					Str("method", r.Method).
					Str("url", r.URL.Path).
					Int("status", sw.status).
					Dur("duration", time.Since(start)).
					Str("remoteAddr", r.RemoteAddr).Msg("")
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

// tracing is a utility function that adds header tracing
func tracing(nextRequestID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = nextRequestID()
			}

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
