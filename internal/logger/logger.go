// Package logger provides the cfrealip-server structured logging on top of
// zap, plus an adapter exposing it through the slog-shaped Logger
// interfaces of the cfrealip packages.
package logger

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

type responseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *responseData
}

// Log is the process-wide logger. It discards everything until Init is
// called.
var Log = zap.NewNop().Sugar()

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	if r.responseData.status == 0 {
		r.responseData.status = http.StatusOK
	}
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.responseData.status = statusCode
}

// Init replaces Log with a production logger at level.
func Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = zl.Sugar()

	return nil
}

// Sync flushes any buffered log entries.
func Sync() error {
	if err := Log.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}

	return nil
}

// WithLoggingHTTPMiddleware logs method, URI, status, size and duration of
// every request.
func WithLoggingHTTPMiddleware(h http.Handler) http.Handler {
	logFn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		responseData := &responseData{}
		lw := loggingResponseWriter{
			ResponseWriter: w,
			responseData:   responseData,
		}
		h.ServeHTTP(&lw, r)

		Log.Infow("request",
			"uri", r.RequestURI,
			"method", r.Method,
			"remote_addr", r.RemoteAddr,
			"status", responseData.status,
			"duration", time.Since(start),
			"size", responseData.size,
		)
	}

	return http.HandlerFunc(logFn)
}

// Adapter satisfies cfrealip.Logger and rangesource.Logger with a zap
// SugaredLogger. A nil logger means Log at call time.
type Adapter struct {
	logger *zap.SugaredLogger
}

// NewAdapter wraps logger, or Log when logger is nil.
func NewAdapter(logger *zap.SugaredLogger) *Adapter {
	return &Adapter{logger: logger}
}

func (a *Adapter) sugared() *zap.SugaredLogger {
	if a == nil || a.logger == nil {
		return Log
	}
	return a.logger
}

// InfoContext logs msg with slog-style key/value args.
func (a *Adapter) InfoContext(_ context.Context, msg string, args ...any) {
	a.sugared().Infow(msg, args...)
}

// WarnContext logs msg with slog-style key/value args.
func (a *Adapter) WarnContext(_ context.Context, msg string, args ...any) {
	a.sugared().Warnw(msg, args...)
}

// ErrorContext logs msg with slog-style key/value args.
func (a *Adapter) ErrorContext(_ context.Context, msg string, args ...any) {
	a.sugared().Errorw(msg, args...)
}
