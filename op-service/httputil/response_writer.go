package httputil

import "net/http"

// WrappedResponseWriter records the status code and body size written through it.
type WrappedResponseWriter struct {
	http.ResponseWriter

	StatusCode  int
	ResponseLen int
	wroteHeader bool
}

func NewWrappedResponseWriter(w http.ResponseWriter) *WrappedResponseWriter {
	return &WrappedResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (w *WrappedResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.StatusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *WrappedResponseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.ResponseLen += n
	return n, err
}

// Unwrap exposes the inner writer to http.ResponseController.
func (w *WrappedResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
