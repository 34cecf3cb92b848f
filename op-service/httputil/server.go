package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPServer serves a handler on a TCP address, once.
// A zero port binds to any free port, use Addr or HTTPEndpoint to find it.
type HTTPServer struct {
	addr string
	srv  *http.Server

	mu       sync.Mutex
	listener net.Listener
	stopped  bool

	// closed when the serve loop exits
	done chan struct{}
}

// NewHTTPServer creates an HTTPServer for handler. It does not listen until Start is called.
func NewHTTPServer(addr string, handler http.Handler, opts ...Option) *HTTPServer {
	srv := &http.Server{Handler: handler}
	WithTimeouts(DefaultTimeouts)(srv)
	for _, opt := range opts {
		opt(srv)
	}
	return &HTTPServer{addr: addr, srv: srv, done: make(chan struct{})}
}

// StartHTTPServer creates and starts an HTTPServer.
func StartHTTPServer(addr string, handler http.Handler, opts ...Option) (*HTTPServer, error) {
	s := NewHTTPServer(addr, handler, opts...)
	return s, s.Start()
}

// Start binds the listener and serves in the background.
// It fails if the server was started before, or if it does not stay up briefly after binding.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil || s.stopped {
		return errors.New("server was already started")
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %q: %w", s.addr, err)
	}
	s.listener = l

	errCh := make(chan error, 1)
	go func() {
		defer close(s.done)
		errCh <- s.srv.Serve(l)
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-time.After(10 * time.Millisecond):
		return nil
	}
}

// Stop shuts the server down gracefully, and force-closes open connections once ctx is done.
// Stopping a server that is not running is a no-op.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.stopped {
		s.stopped = true
		return nil
	}
	s.stopped = true
	err := s.srv.Shutdown(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		err = s.srv.Close()
	}
	<-s.done
	return err
}

// Closed reports whether Stop was called.
func (s *HTTPServer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Addr is the bound address, nil if the server never started.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HTTPEndpoint is the base URL of the server, empty if it is not running.
func (s *HTTPServer) HTTPEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.stopped {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}
