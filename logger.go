package adldap

import (
	"context"
	"time"
)

// Logger is the external collaborator this package logs through. Every
// method is expected to be safe to call from the driver's suspension
// points (§5): a slow logger slows the search, it does not corrupt it.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]any)
	Info(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, fields map[string]any)
	Critical(ctx context.Context, msg string, fields map[string]any)
}

// nopLogger discards everything. Used when Config.Log is nil so call
// sites never have to nil-check the logger.
type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, map[string]any)    {}
func (nopLogger) Info(context.Context, string, map[string]any)     {}
func (nopLogger) Warn(context.Context, string, map[string]any)     {}
func (nopLogger) Error(context.Context, string, map[string]any)    {}
func (nopLogger) Critical(context.Context, string, map[string]any) {}

// logOperation logs the start and timed completion of op, the way the
// teacher's LogOperation helper brackets a unit of work - here scoped to
// read-only search operations instead of provider CRUD calls.
func logOperation(ctx context.Context, log Logger, op string, fields map[string]any, fn func() error) error {
	start := time.Now()
	log.Debug(ctx, op+" starting", fields)
	err := fn()
	elapsed := time.Since(start)
	if err != nil {
		log.Error(ctx, op+" failed", mergeFields(fields, map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"error":       err.Error(),
		}))
		return err
	}
	log.Debug(ctx, op+" completed", mergeFields(fields, map[string]any{
		"duration_ms": elapsed.Milliseconds(),
	}))
	return nil
}

func mergeFields(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
