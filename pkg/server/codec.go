package server

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/frame"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

var ErrMalformed = errors.New("malformed reading")

// EncodeReading lays a Reading out with the same keys as its JSON form.
func EncodeReading(r stream.Reading) *structpb.Struct {
	channels := make([]*structpb.Value, len(r.Channels))
	for i, c := range r.Channels {
		channels[i] = structpb.NewNumberValue(float64(c))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"serial":   structpb.NewStringValue(r.Serial),
		"counter":  structpb.NewNumberValue(float64(r.Counter)),
		"channels": structpb.NewListValue(&structpb.ListValue{Values: channels}),
		"iat":      structpb.NewStringValue(r.Iat.UTC().Format(time.RFC3339Nano)),
	}}
}

func DecodeReading(s *structpb.Struct) (stream.Reading, error) {
	var r stream.Reading
	f := s.GetFields()

	serial, ok := f["serial"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return r, fmt.Errorf("%w: serial", ErrMalformed)
	}
	r.Serial = serial.StringValue

	counter, ok := f["counter"].GetKind().(*structpb.Value_NumberValue)
	if !ok || counter.NumberValue < 0 || counter.NumberValue > 255 {
		return r, fmt.Errorf("%w: counter", ErrMalformed)
	}
	r.Counter = uint8(counter.NumberValue)

	values := f["channels"].GetListValue().GetValues()
	if len(values) != frame.Channels {
		return r, fmt.Errorf("%w: want %d channels, got %d", ErrMalformed, frame.Channels, len(values))
	}
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return r, fmt.Errorf("%w: channel %d", ErrMalformed, i)
		}
		r.Channels[i] = int16(n.NumberValue)
	}

	iat, err := time.Parse(time.RFC3339Nano, f["iat"].GetStringValue())
	if err != nil {
		return r, fmt.Errorf("%w: iat: %v", ErrMalformed, err)
	}
	r.Iat = iat
	return r, nil
}

func EncodeStatus(st session.Status, subscribers int) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"state":       structpb.NewStringValue(string(st.State)),
		"port":        structpb.NewStringValue(st.Port),
		"last_error":  structpb.NewStringValue(st.LastError),
		"since":       structpb.NewStringValue(st.Since.UTC().Format(time.RFC3339Nano)),
		"subscribers": structpb.NewNumberValue(float64(subscribers)),
	}}
}
