package main

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/server"
)

type TelemetryClient struct {
	server.TelemetryClient
	Log logrus.FieldLogger
}

// ListenForSamples prints samples until the server ends the stream,
// ctx is done or limit samples were received (limit 0 means no limit).
func (cl *TelemetryClient) ListenForSamples(ctx context.Context, limit int) error {
	cl.Log.Info("connected to gRPC streaming server, starts polling")
	defer cl.Log.Info("client finished")

	samples, err := cl.StreamSamples(ctx, &emptypb.Empty{})
	if err != nil {
		return err
	}
	for n := 0; limit == 0 || n < limit; n++ {
		msg, err := samples.Recv()
		if errors.Is(err, io.EOF) {
			cl.Log.Info("streaming finished")
			return nil
		}
		if err != nil {
			return err
		}
		r, err := server.DecodeReading(msg)
		if err != nil {
			cl.Log.WithError(err).Warn("skipping sample")
			continue
		}
		cl.Log.WithField("port", r.Serial).Infof("#%03d %v", r.Counter, r.Channels)
	}
	return nil
}

func (cl *TelemetryClient) PrintStatus(ctx context.Context) error {
	st, err := cl.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return err
	}
	cl.Log.WithFields(st.AsMap()).Info("status")
	return nil
}
