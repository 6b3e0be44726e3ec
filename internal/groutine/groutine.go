// Package groutine starts named goroutines. The name is attached as a pprof
// label and carried in the context, which makes the background tasks of the
// connection manager (accept loop, connect handshake, receive loop, inquiry)
// identifiable in goroutine dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine with a name and an optional parent context.
//
//	groutine.Go(ctx, "accept-loop", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context, if present.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
