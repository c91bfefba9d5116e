package localctrl

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/signal"
)

// GRPCClient is a Client backed by plain gRPC connections, one per
// address, cached for reuse across calls. The actual service stubs
// (ForwardCustomSignal, KillGroup, RemoveBundle) are out of this system's
// proto-generation scope (no buf/protoc pipeline shipped with the spec),
// so this client dials a generic grpc.ClientConn and leaves the actual
// method invocation to the injected Invoker, which tests replace with a
// mock transport.
type GRPCClient struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	dial  func(address string) (*grpc.ClientConn, error)

	Invoker Invoker
}

// Invoker performs the actual unary call over an established connection.
// Production code wires this to generated gRPC stubs once a .proto
// pipeline is added; until then NewGRPCClient defaults to an invoker that
// returns ErrNoInvoker so misconfiguration fails loudly instead of
// silently no-op'ing.
type Invoker interface {
	ForwardCustomSignal(ctx context.Context, conn *grpc.ClientConn, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error)
	KillGroup(ctx context.Context, conn *grpc.ClientConn, req signal.KillGroupRequest) (signal.KillGroupResponse, error)
	ClearGroup(ctx context.Context, conn *grpc.ClientConn, groupID string) error
	RemoveBundle(ctx context.Context, conn *grpc.ClientConn, req signal.RemoveBundleRequest) (signal.RemoveBundleResponse, error)
}

// ErrNoInvoker is returned by the default GRPCClient when no Invoker has
// been configured.
var ErrNoInvoker = fmt.Errorf("localctrl: no Invoker configured")

// NewGRPCClient builds a GRPCClient that dials with insecure transport
// credentials, matching a sidecar-mesh deployment where transport
// security is handled by the node network, not this client.
func NewGRPCClient(invoker Invoker) *GRPCClient {
	return &GRPCClient{
		conns:   make(map[string]*grpc.ClientConn),
		Invoker: invoker,
		dial: func(address string) (*grpc.ClientConn, error) {
			return grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		},
	}
}

func (c *GRPCClient) connFor(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[address]; ok {
		return conn, nil
	}
	conn, err := c.dial(address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	c.conns[address] = conn
	return conn, nil
}

func (c *GRPCClient) ForwardCustomSignal(ctx context.Context, address string, req signal.ForwardCustomSignalRequest) (signal.ForwardCustomSignalResponse, error) {
	if c.Invoker == nil {
		return signal.ForwardCustomSignalResponse{}, ErrNoInvoker
	}
	conn, err := c.connFor(address)
	if err != nil {
		return signal.ForwardCustomSignalResponse{}, err
	}
	return c.Invoker.ForwardCustomSignal(ctx, conn, req)
}

func (c *GRPCClient) KillGroup(ctx context.Context, address string, req signal.KillGroupRequest) (signal.KillGroupResponse, error) {
	if c.Invoker == nil {
		return signal.KillGroupResponse{}, ErrNoInvoker
	}
	conn, err := c.connFor(address)
	if err != nil {
		return signal.KillGroupResponse{}, err
	}
	return c.Invoker.KillGroup(ctx, conn, req)
}

func (c *GRPCClient) ClearGroup(ctx context.Context, address string, groupID string) error {
	if c.Invoker == nil {
		return ErrNoInvoker
	}
	conn, err := c.connFor(address)
	if err != nil {
		return err
	}
	return c.Invoker.ClearGroup(ctx, conn, groupID)
}

func (c *GRPCClient) RemoveBundle(ctx context.Context, address string, req signal.RemoveBundleRequest) (signal.RemoveBundleResponse, error) {
	if c.Invoker == nil {
		return signal.RemoveBundleResponse{}, ErrNoInvoker
	}
	conn, err := c.connFor(address)
	if err != nil {
		return signal.RemoveBundleResponse{}, err
	}
	return c.Invoker.RemoveBundle(ctx, conn, req)
}

// Close tears down every cached connection.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
	}
	c.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}
