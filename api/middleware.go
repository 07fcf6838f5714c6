package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderGreeting = "X-Shop-Greeting"
	HeaderVisitor  = "X-Shop-Visitor"

	greetingMessage = "Buy now to get FREE delivery!"
	visitorMessage  = "You are 10-th user!"
)

// NewStructuredLogger logs one line per request.
func NewStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				status := ww.Status()

				requestAttrs := slog.Group("request",
					slog.String("id", middleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				responseAttrs := slog.Group("response",
					slog.Int("status", status),
					slog.Int("bytes", ww.BytesWritten()),
					slog.String("latency", time.Since(start).String()),
				)

				if status >= 500 {
					logger.Error("server error", requestAttrs, responseAttrs)
				} else {
					logger.Info("request completed", requestAttrs, responseAttrs)
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

// VisitCounter tags every tenth authenticated request. The count is shared
// by the whole process.
type VisitCounter struct {
	mu    sync.Mutex
	count int
	every int
}

// NewVisitCounter creates a counter that fires every n visits.
func NewVisitCounter(n int) *VisitCounter {
	if n <= 0 {
		n = 10
	}
	return &VisitCounter{every: n}
}

// Visit counts one visit and reports whether it was the n-th.
func (vc *VisitCounter) Visit() bool {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.count++
	if vc.count < vc.every {
		return false
	}
	vc.count = 0
	return true
}

// Reset starts counting from zero.
func (vc *VisitCounter) Reset() {
	vc.mu.Lock()
	vc.count = 0
	vc.mu.Unlock()
}

// Middleware sets X-Shop-Visitor on the n-th authenticated request.
func (vc *VisitCounter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SubjectFrom(r.Context()).Authenticated() && vc.Visit() {
			w.Header().Set(HeaderVisitor, visitorMessage)
		}
		next.ServeHTTP(w, r)
	})
}

// Greeting sets X-Shop-Greeting for authenticated users who have not bought
// anything yet. A lookup failure skips the header.
func (h *Handler) Greeting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := SubjectFrom(r.Context())
		if subject.UserID != 0 {
			has, err := h.Service.HasPurchases(r.Context(), subject.UserID)
			if err != nil {
				h.Logger.Warn("greeting lookup failed", "user_id", subject.UserID, "error", err)
			} else if !has {
				w.Header().Set(HeaderGreeting, greetingMessage)
			}
		}
		next.ServeHTTP(w, r)
	})
}
