package server

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/hub"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
)

// TelemetryService streams hub readings to gRPC clients.
type TelemetryService struct {
	Hub    *hub.Hub
	Status func() session.Status
	// Buffer is the per-client subscription capacity.
	Buffer int
	Log    logrus.FieldLogger
}

func (srv *TelemetryService) log() logrus.FieldLogger {
	if srv.Log == nil {
		return logrus.StandardLogger()
	}
	return srv.Log
}

func (srv *TelemetryService) StreamSamples(_ *emptypb.Empty, out Telemetry_StreamSamplesServer) error {
	sub, err := srv.Hub.Subscribe(srv.Buffer)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer sub.Close()

	ctx := out.Context()
	srv.log().Info("StreamSamples invoked")
	for {
		select {
		case <-ctx.Done():
			srv.log().Info("StreamSamples client left")
			return status.FromContextError(ctx.Err()).Err()
		case r, open := <-sub.C():
			if !open {
				return status.Error(codes.Unavailable, hub.ErrAlreadyClosed.Error())
			}
			if err := out.Send(EncodeReading(r)); err != nil {
				srv.log().WithError(err).Warn("StreamSamples send")
				return err
			}
		}
	}
}

func (srv *TelemetryService) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st := session.Status{State: session.StateIdle}
	if srv.Status != nil {
		st = srv.Status()
	}
	return EncodeStatus(st, srv.Hub.Len()), nil
}
