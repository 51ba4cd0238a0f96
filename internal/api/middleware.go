package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"recaps/internal/types"
)

// statusRecorder captures the status code written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.status = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.status = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Recoverer turns a handler panic into a logged 500 response. It must be the
// outermost middleware.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.Logger.ErrorContext(r.Context(), "panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprintf("%v", rvr)),
					slog.String("stack", string(debug.Stack())),
				)
				Error(w, r, fmt.Errorf("panic: %v", rvr))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses the caller's X-Request-Id or generates one, and
// echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// RequestLogger logs one line per request. Header values are never logged.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			reqLog := logger.With("request_id", types.GetRequestID(r.Context()))
			ctx := types.WithLogger(r.Context(), reqLog)
			next.ServeHTTP(rec, r.WithContext(ctx))

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			}
			switch {
			case rec.status >= 500:
				reqLog.ErrorContext(ctx, "request completed", args...)
			case rec.status >= 400:
				reqLog.WarnContext(ctx, "request completed", args...)
			default:
				reqLog.InfoContext(ctx, "request completed", args...)
			}
		})
	}
}

// AdminAuth requires "Authorization: Bearer <admin key>".
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	want := []byte(s.AdminKey.Unmask())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing bearer token", nil))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid bearer token", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
