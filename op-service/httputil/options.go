package httputil

import (
	"net/http"
	"time"
)

// Option adjusts the http.Server before it starts listening.
type Option func(srv *http.Server)

// HTTPTimeouts bounds the phases of a request on the server side.
type HTTPTimeouts struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DefaultTimeouts leave room for slow upstream RPCs while a proof is assembled.
var DefaultTimeouts = HTTPTimeouts{
	ReadTimeout:       30 * time.Second,
	ReadHeaderTimeout: 30 * time.Second,
	WriteTimeout:      60 * time.Second,
	IdleTimeout:       120 * time.Second,
}

func WithTimeouts(t HTTPTimeouts) Option {
	return func(srv *http.Server) {
		srv.ReadTimeout = t.ReadTimeout
		srv.ReadHeaderTimeout = t.ReadHeaderTimeout
		srv.WriteTimeout = t.WriteTimeout
		srv.IdleTimeout = t.IdleTimeout
	}
}

func WithMaxHeaderBytes(n int) Option {
	return func(srv *http.Server) {
		srv.MaxHeaderBytes = n
	}
}
