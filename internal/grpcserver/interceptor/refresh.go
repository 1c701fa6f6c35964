package interceptor

import (
	"context"

	"google.golang.org/grpc"
)

// UnaryRefreshInterceptor calls refresh before handling any of the given methods.
func UnaryRefreshInterceptor(methods []string, refresh func(ctx context.Context)) grpc.UnaryServerInterceptor {
	refreshed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		refreshed[m] = struct{}{}
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if _, ok := refreshed[info.FullMethod]; ok {
			refresh(ctx)
		}

		return handler(ctx, req)
	}
}
