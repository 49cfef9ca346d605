package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// TimeoutInterceptor gives every call a deadline unless the client already
// set an earlier one. A zero timeout disables it.
func TimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		if timeout <= 0 {
			return handler(ctx, req)
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= timeout {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}
