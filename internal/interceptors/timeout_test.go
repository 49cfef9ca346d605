package interceptors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
)

func TestTimeoutInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Y"}
	remaining := func(ctx context.Context, _ any) (any, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return time.Duration(0), nil
		}
		return time.Until(deadline), nil
	}

	got, _ := TimeoutInterceptor(time.Second)(context.Background(), nil, info, remaining)
	assert.InDelta(t, time.Second, got.(time.Duration), float64(100*time.Millisecond))

	// An earlier client deadline is kept.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	got, _ = TimeoutInterceptor(time.Second)(ctx, nil, info, remaining)
	assert.Less(t, got.(time.Duration), 200*time.Millisecond)

	got, _ = TimeoutInterceptor(0)(context.Background(), nil, info, remaining)
	assert.Zero(t, got)
}
