// Package trace assigns every request an ID and logs its start and end.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	ilog "ikpa/internal/log"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	infoKey      contextKey = "request_info"

	// HeaderRequestID is read from incoming requests and echoed back.
	HeaderRequestID = "X-Request-ID"
)

// requestInfo is filled in by later middleware so the completion log can
// name the user.
type requestInfo struct {
	userID atomic.Int64
}

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *ilog.Logger
	total     atomic.Int64
}

func NewMiddleware(logger *ilog.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		logger:    logger,
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		info := &requestInfo{}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, infoKey, info)
		reqLogger := m.logger.With(ilog.FieldRequestID, requestID)
		ctx = ilog.NewContext(ctx, reqLogger)
		r = r.WithContext(ctx)

		m.total.Add(1)
		sl := ilog.NewStructuredLogger(reqLogger)
		sl.LogHTTPStart(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		sl.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP, info.userID.Load())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetUserID records the authenticated user for the completion log.
func SetUserID(ctx context.Context, userID int64) {
	if info, ok := ctx.Value(infoKey).(*requestInfo); ok {
		info.userID.Store(userID)
	}
}

// TotalRequests is the number of requests seen since start.
func (m *Middleware) TotalRequests() int64 {
	return m.total.Load()
}
