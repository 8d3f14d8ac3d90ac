// Package kit holds the transport-neutral endpoint shape shared by the
// dashboard and the MCP tools.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Logging logs every call with its duration and error, if any.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				logger.WarnContext(ctx, "kit: call failed", "endpoint", name, "duration", time.Since(start), "error", err)
			} else {
				logger.DebugContext(ctx, "kit: call", "endpoint", name, "duration", time.Since(start))
			}
			return resp, err
		}
	}
}
