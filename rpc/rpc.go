// Package rpc serves the conversation engine over gRPC.
//
// The Chat service has a single unary method, recall.v1.Chat/Send, whose
// request and response are google.protobuf.Struct values carrying the same
// fields as the HTTP POST /chat body and reply. The standard grpc.health.v1
// service reports SERVING only when the memory pipeline is up.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/engine"
)

const (
	// ServiceName is the fully qualified Chat service name.
	ServiceName = "recall.v1.Chat"
	sendMethod  = "/" + ServiceName + "/Send"
)

// ChatServer is the server API for the Chat service.
type ChatServer interface {
	Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recall/v1/chat.proto",
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sendMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatServer).Send(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterChatServer registers srv on s.
func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&chatServiceDesc, srv)
}

// Server adapts an engine to ChatServer and owns the health service.
type Server struct {
	engine *engine.Engine
	health *health.Server
}

var _ ChatServer = (*Server)(nil)

// New creates a Server. Health reflects eng.Ready().
func New(eng *engine.Engine) *Server {
	s := &Server{engine: eng, health: health.NewServer()}

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if eng.Ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return s
}

// Register adds the Chat and health services to gs.
func (s *Server) Register(gs *grpc.Server) {
	RegisterChatServer(gs, s)
	healthpb.RegisterHealthServer(gs, s.health)
}

// Serve runs a gRPC server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary))
	s.Register(gs)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.Serve(ln)
	}()
	log.Printf("[RPC] Listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		gs.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("grpc serve: %w", err)
	}
}

// Send runs one turn. Request fields: message (required), user_id, turn.
func (s *Server) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	in := &core.Input{
		Message: fields["message"].GetStringValue(),
		UserID:  fields["user_id"].GetStringValue(),
		Turn:    int(fields["turn"].GetNumberValue()),
	}

	out, err := s.engine.Turn(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]any{
		"response":    out.Answer,
		"memory_used": out.MemoryUsed(),
		"timestamp":   out.Timestamp.Format(time.RFC3339),
		"turn":        out.Turn,
		"user_id":     out.UserID,
	})
}

func toStatus(err error) error {
	var code codes.Code
	switch {
	case core.IsInvalidInput(err):
		code = codes.InvalidArgument
	case errors.Is(err, engine.ErrNotReady):
		code = codes.Unavailable
	case core.IsRecoverable(err) && core.IsTimeout(err):
		code = codes.DeadlineExceeded
	case core.IsRecoverable(err):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		log.Printf("[RPC] %s failed after %s: %v", info.FullMethod, time.Since(start).Round(time.Millisecond), err)
	}
	return resp, err
}

// Client calls the Chat service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Send invokes recall.v1.Chat/Send.
func (c *Client) Send(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, sendMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
