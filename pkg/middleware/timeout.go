package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	pending int32 = iota
	handlerOwns
	timedOut
)

// Timeout bounds each request by d. If the handler has written nothing when
// the deadline passes the client gets a 504 and later writes are discarded;
// once the handler has started its response it is left to finish.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{w: w, header: make(http.Header)}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if tw.state.CompareAndSwap(pending, timedOut) {
					slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", d)
					writeError(w, http.StatusGatewayTimeout, "request timeout")
					return
				}
				<-done
			}
		})
	}
}

// timeoutWriter buffers headers until the handler claims the response, so
// the handler and the timeout path never touch w at the same time.
type timeoutWriter struct {
	w      http.ResponseWriter
	header http.Header
	state  atomic.Int32
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) claim() bool {
	if tw.state.CompareAndSwap(pending, handlerOwns) {
		dst := tw.w.Header()
		for k, v := range tw.header {
			dst[k] = v
		}
		return true
	}
	return tw.state.Load() == handlerOwns
}

func (tw *timeoutWriter) WriteHeader(code int) {
	if tw.claim() {
		tw.w.WriteHeader(code)
	}
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	if !tw.claim() {
		return 0, http.ErrHandlerTimeout
	}
	return tw.w.Write(b)
}
