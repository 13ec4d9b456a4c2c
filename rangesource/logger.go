package rangesource

import "context"

// Logger receives refresh and persistence events from Source.
//
// The method set matches *slog.Logger, which can be passed directly.
type Logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) InfoContext(context.Context, string, ...any) {}

func (noopLogger) WarnContext(context.Context, string, ...any) {}

func (noopLogger) ErrorContext(context.Context, string, ...any) {}
