// Package log defines the logger used across hivemind components.
package log

import "context"

// Kv is a helper type for structured logging key-value pairs.
type Kv = map[string]any

// Logger is the interface every component logs through.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
	WithValues(values Kv) Logger
	WithCtxValues(ctx context.Context) Logger
}

const noop = noopLogger(0)

// Noop logger doesn't log anything.
var Noop Logger = noop

type noopLogger int

func (n noopLogger) Infof(format string, args ...any) {}
func (n noopLogger) Warningf(format string, args ...any) {}
func (n noopLogger) Errorf(format string, args ...any) {}
func (n noopLogger) Debugf(format string, args ...any) {}
func (n noopLogger) WithValues(_ Kv) Logger { return n }
func (n noopLogger) WithCtxValues(_ context.Context) Logger { return n }

type contextKey string

const contextLogValuesKey = contextKey("internal-log-values")

// CtxWithValues returns a copy of the context with the log values merged in.
func CtxWithValues(parent context.Context, kv Kv) context.Context {
	if len(kv) == 0 {
		return parent
	}

	values := ValuesFromCtx(parent)
	merged := make(Kv, len(values)+len(kv))
	for k, v := range values {
		merged[k] = v
	}
	for k, v := range kv {
		merged[k] = v
	}

	return context.WithValue(parent, contextLogValuesKey, merged)
}

// ValuesFromCtx gets the log values stored in the context.
func ValuesFromCtx(ctx context.Context) Kv {
	if ctx == nil {
		return Kv{}
	}
	v, ok := ctx.Value(contextLogValuesKey).(Kv)
	if !ok {
		return Kv{}
	}

	values := make(Kv, len(v))
	for k, val := range v {
		values[k] = val
	}

	return values
}
