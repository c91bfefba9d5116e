// Package telemetry wires function-master's logging, tracing and metrics
// stack, grounded on milo's internal/tracing and internal/grpc/logging
// packages.
package telemetry

import (
	"context"
	"log/slog"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// NewLogger builds the process-wide structured logger. component is
// attached to every record so multiplexed component logs (instance
// manager, group manager, reconciler, ...) can be filtered downstream.
func NewLogger(component string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("component", component))
}

// UnaryServerInterceptor logs every inbound RPC at Info, and its error at
// Error, mirroring milo's internal/grpc/logging interceptor.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		logger.InfoContext(ctx, "rpc request received", slog.String("method", info.FullMethod), slog.Any("request", asProtoOrNil(req)))
		resp, err := handler(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "rpc request failed", slog.String("method", info.FullMethod), slog.Any("error", status.Convert(err).Proto()))
			return resp, err
		}
		logger.InfoContext(ctx, "rpc request completed", slog.String("method", info.FullMethod))
		return resp, err
	}
}

// UnaryClientInterceptor is the outbound counterpart of
// UnaryServerInterceptor. localctrl.NewGRPCClient does not install it on
// the connections it dials.
func UnaryClientInterceptor(logger *slog.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		logger.InfoContext(ctx, method, slog.Any("request", asProtoOrNil(req)))
		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			logger.ErrorContext(ctx, "rpc call failed", slog.String("method", method), slog.Any("error", status.Convert(err).Proto()))
		}
		return err
	}
}

func asProtoOrNil(v any) any {
	if m, ok := v.(proto.Message); ok {
		return m
	}
	return nil
}
