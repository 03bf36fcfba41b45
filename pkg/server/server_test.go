package server

import (
	"context"
	"net"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/frame"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/hub"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

func dialTelemetry(t *testing.T, h *hub.Hub) TelemetryClient {
	log, _ := logtest.NewNullLogger()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterTelemetryServer(s, &TelemetryService{
		Hub: h,
		Status: func() session.Status {
			return session.Status{State: session.StateStreaming, Port: "COM5", Since: time.Unix(0, 0)}
		},
		Buffer: 16,
		Log:    log,
	})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })
	return NewTelemetryClient(cc)
}

func TestTelemetry_StreamSamples(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log, _ := logtest.NewNullLogger()
	h := hub.New(ctx, log, nil)
	client := dialTelemetry(t, h)

	samples, err := client.StreamSamples(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, time.Millisecond)

	iat := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	for i := uint8(0); i < 3; i++ {
		h.Deliver(ctx, stream.Reading{
			Serial: "COM5",
			Sample: frame.Sample{Counter: i, Channels: [frame.Channels]int16{-32768, 32767, 0, 1, -1, int16(i)}},
			Iat:    iat,
		})
	}
	for i := uint8(0); i < 3; i++ {
		msg, err := samples.Recv()
		require.NoError(t, err)
		r, err := DecodeReading(msg)
		require.NoError(t, err)
		require.Equal(t, "COM5", r.Serial)
		require.Equal(t, i, r.Counter)
		require.Equal(t, [frame.Channels]int16{-32768, 32767, 0, 1, -1, int16(i)}, r.Channels)
		require.True(t, iat.Equal(r.Iat))
	}

	// leaving the stream releases the subscription
	cancel()
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, time.Millisecond)
}

func TestTelemetry_HubClosedEndsStream(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	h := hub.New(context.Background(), log, nil)
	client := dialTelemetry(t, h)

	samples, err := client.StreamSamples(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, time.Millisecond)

	h.Close()
	_, err = samples.Recv()
	require.Equal(t, codes.Unavailable, status.Code(err))

	again, err := client.StreamSamples(context.Background(), &emptypb.Empty{})
	if err == nil {
		_, err = again.Recv()
	}
	require.Error(t, err)
}

func TestTelemetry_GetStatus(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	h := hub.New(context.Background(), log, nil)
	defer h.Close()
	client := dialTelemetry(t, h)

	st, err := client.GetStatus(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	fields := st.GetFields()
	require.Equal(t, "streaming", fields["state"].GetStringValue())
	require.Equal(t, "COM5", fields["port"].GetStringValue())
	require.Equal(t, 0.0, fields["subscribers"].GetNumberValue())
}

func TestDecodeReading_Malformed(t *testing.T) {
	valid := EncodeReading(stream.Reading{Serial: "COM5", Iat: time.Now()})
	_, err := DecodeReading(valid)
	require.NoError(t, err)

	cases := map[string]func(s *structpb.Struct){
		"no serial":      func(s *structpb.Struct) { delete(s.Fields, "serial") },
		"counter range":  func(s *structpb.Struct) { s.Fields["counter"] = structpb.NewNumberValue(256) },
		"short channels": func(s *structpb.Struct) { s.Fields["channels"] = structpb.NewListValue(&structpb.ListValue{}) },
		"bad iat":        func(s *structpb.Struct) { s.Fields["iat"] = structpb.NewStringValue("yesterday") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := EncodeReading(stream.Reading{Serial: "COM5", Iat: time.Now()})
			mutate(s)
			_, err := DecodeReading(s)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}
