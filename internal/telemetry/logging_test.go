package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestUnaryServerInterceptor_LogsSuccess(t *testing.T) {
	logger, buf := newTestLogger()
	interceptor := UnaryServerInterceptor(logger)

	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Method"}, handler)

	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Contains(t, buf.String(), "rpc request completed")
	assert.Contains(t, buf.String(), "/test.Svc/Method")
}

func TestUnaryServerInterceptor_LogsFailure(t *testing.T) {
	logger, buf := newTestLogger()
	interceptor := UnaryServerInterceptor(logger)

	wantErr := status.Error(codes.NotFound, "missing")
	handler := func(ctx context.Context, req any) (any, error) { return nil, wantErr }
	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Svc/Method"}, handler)

	require.Error(t, err)
	assert.Contains(t, buf.String(), "rpc request failed")
}

func TestUnaryClientInterceptor_LogsFailure(t *testing.T) {
	logger, buf := newTestLogger()
	interceptor := UnaryClientInterceptor(logger)

	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return errors.New("dial failed")
	}
	err := interceptor(context.Background(), "/test.Svc/Method", "req", "reply", nil, invoker)

	require.Error(t, err)
	assert.Contains(t, buf.String(), "rpc call failed")
}

func TestAsProtoOrNil_NonProtoReturnsNil(t *testing.T) {
	assert.Nil(t, asProtoOrNil("not a proto message"))
}
