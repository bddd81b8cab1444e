package httpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		r = r.WithContext(ctx)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r)
	})
}

// accessLogMiddleware writes one line per request. Uploads log their
// declared size so oversized images are visible next to the 413.
func accessLogMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured := httpsnoop.CaptureMetrics(next, w, r)

		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}

		attrs := []any{
			"request_id", RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", captured.Code,
			"duration_ms", float64(captured.Duration.Microseconds()) / 1000.0,
			"bytes", captured.Written,
			"client", client,
		}
		if r.ContentLength > 0 {
			attrs = append(attrs, "upload_bytes", r.ContentLength, "content_type", r.Header.Get("Content-Type"))
		}

		level := slog.LevelInfo
		if captured.Code >= 500 {
			level = slog.LevelError
		} else if captured.Code >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http_request", attrs...)
	})
}

// recoverMiddleware turns a handler panic into a 500 JSON body.
// http.ErrAbortHandler keeps its meaning and is re-raised.
func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			switch rec := recover(); rec {
			case nil:
			case http.ErrAbortHandler:
				panic(rec)
			default:
				logger.Error("http_handler_panic",
					"request_id", RequestIDFromContext(r.Context()),
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
