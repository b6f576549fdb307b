package rpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/memory"
)

type echoMemory struct {
	err error
}

func (m echoMemory) Retrieve(_ context.Context, q string) (string, string, error) {
	if m.err != nil {
		return "", "", m.err
	}
	return "echo: " + q, "", nil
}

func (echoMemory) Ingest(_ context.Context, text string, turn int) (*memory.Record, error) {
	return memory.NewRecord(text, turn), nil
}

func (echoMemory) Count(context.Context) (int, error) { return 0, nil }

func dial(t *testing.T, eng *engine.Engine) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = New(eng).Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return conn
}

func TestSend(t *testing.T) {
	conn := dial(t, engine.New(echoMemory{}))
	client := NewClient(conn)

	req, err := structpb.NewStruct(map[string]any{"message": "hello", "user_id": "alice"})
	require.NoError(t, err)

	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "echo: hello", fields["response"].GetStringValue())
	assert.Equal(t, memory.NoMemoryPlaceholder, fields["memory_used"].GetStringValue())
	assert.Equal(t, float64(1), fields["turn"].GetNumberValue())
	assert.Equal(t, "alice", fields["user_id"].GetStringValue())
	assert.NotEmpty(t, fields["timestamp"].GetStringValue())
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name string
		eng  *engine.Engine
		msg  string
		want codes.Code
	}{
		{"empty message", engine.New(echoMemory{}), "", codes.InvalidArgument},
		{"not ready", engine.New(nil), "hello", codes.Unavailable},
		{"generation", engine.New(echoMemory{err: core.NewError(core.KindGeneration, "generate answer", errors.New("overloaded"))}), "hello", codes.Unavailable},
		{"timeout", engine.New(echoMemory{err: core.NewError(core.KindGeneration, "generate answer", context.DeadlineExceeded)}), "hello", codes.DeadlineExceeded},
		{"unknown", engine.New(echoMemory{err: errors.New("boom")}), "hello", codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(dial(t, tt.eng))
			req, err := structpb.NewStruct(map[string]any{"message": tt.msg})
			require.NoError(t, err)

			_, err = client.Send(context.Background(), req)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestHealth(t *testing.T) {
	ready := healthpb.NewHealthClient(dial(t, engine.New(echoMemory{})))
	resp, err := ready.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	degraded := healthpb.NewHealthClient(dial(t, engine.New(nil)))
	resp, err = degraded.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
