package interceptors

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	requestIDKey = "x-request-id"
)

// LoggingInterceptor logs every call with a request id, echoing the id back
// to the client in the response header.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()

		requestID := getOrGenerateRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, requestID))

		logger.Debug("gRPC request started",
			zap.String("method", info.FullMethod),
			zap.String("request_id", requestID),
		)

		resp, err = handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("request_id", requestID),
			zap.Duration("duration", time.Since(start)),
		}

		if err == nil {
			logger.Info("gRPC request completed", fields...)
			return resp, nil
		}

		code := status.Code(err)
		fields = append(fields, zap.String("code", code.String()), zap.Error(err))
		switch code {
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
			logger.Error("gRPC request failed", fields...)
		default:
			logger.Warn("gRPC request rejected", fields...)
		}

		return resp, err
	}
}

func getOrGenerateRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return uuid.New().String()
	}

	requestIDs := md.Get(requestIDKey)
	if len(requestIDs) > 0 && requestIDs[0] != "" {
		return requestIDs[0]
	}

	return uuid.New().String()
}
