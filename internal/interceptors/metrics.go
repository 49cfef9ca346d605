package interceptors

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordinal",
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC requests",
		},
		[]string{"service", "method", "code"},
	)

	grpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ordinal",
			Name:      "grpc_request_duration_seconds",
			Help:      "Histogram of gRPC request durations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	grpcActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ordinal",
			Name:      "grpc_active_requests",
			Help:      "Number of active gRPC requests",
		},
		[]string{"service", "method"},
	)
)

func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		service, method := splitMethod(info.FullMethod)

		active := grpcActiveRequests.WithLabelValues(service, method)
		active.Inc()
		defer active.Dec()

		resp, err = handler(ctx, req)

		grpcRequestDuration.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		grpcRequestsTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()

		return resp, err
	}
}

// splitMethod turns "/pkg.Service/Method" into its service and method parts.
func splitMethod(fullMethod string) (string, string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "unknown", name
}

var panicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ordinal",
	Name:      "grpc_panics_recovered_total",
	Help:      "Number of handler panics turned into Internal errors",
})
