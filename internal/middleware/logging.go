package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"manuscript-review/internal/logger"
)

// maxLoggedBody caps request and response bodies logged at DEBUG
const maxLoggedBody = 4096

// responseWriter captures the status code and, at DEBUG, the response body
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.body != nil && rw.body.Len() < maxLoggedBody {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}

// Logging logs every request once it completes. 5xx responses log at
// ERROR, 4xx at WARN and everything else at INFO. At DEBUG the request
// and response bodies are included.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := logger.FromContext(r.Context())
		debug := log.Enabled(r.Context(), slog.LevelDebug)

		var requestBody []byte
		if debug && r.Body != nil {
			requestBody, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		if debug {
			wrapped.body = &bytes.Buffer{}
		}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		message := "Request completed"
		switch {
		case wrapped.statusCode >= 500:
			level, message = slog.LevelError, "Request failed with error"
		case wrapped.statusCode >= 400:
			level, message = slog.LevelWarn, "Request failed"
		}

		attrs := []any{
			"remote_ip", clientIP(r),
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if debug {
			attrs = append(attrs, "user_agent", r.UserAgent())
			if r.URL.RawQuery != "" {
				attrs = append(attrs, "query", r.URL.RawQuery)
			}
			if len(requestBody) > 0 {
				attrs = append(attrs, "request_body", truncate(requestBody))
			}
			if wrapped.body.Len() > 0 {
				attrs = append(attrs, "response_body", truncate(wrapped.body.Bytes()))
			}
		}
		log.Log(r.Context(), level, message, attrs...)
	})
}
