// Package frame implements the fixed-size telemetry frame of the scope device
// and a streaming decoder which recovers frame alignment after corrupted bytes.
package frame

import (
	"encoding/binary"
	"errors"
)

// Wire format of a single frame:
//
//	offset  size  meaning
//	0       1     StartA
//	1       1     StartB
//	2       1     sequence counter
//	3..14   12    six big-endian int16 channel values
//	15      1     End
const (
	Size     = 16
	Channels = 6

	StartA byte = 0xC7
	StartB byte = 0x7C
	End    byte = 0x01

	CounterOffset = 2
	PayloadOffset = 3
)

var (
	ErrShortFrame = errors.New("frame: short frame")
	ErrBadMarker  = errors.New("frame: bad start or end marker")
)

// Sample is the decoded payload of one valid frame.
type Sample struct {
	Counter  uint8            `json:"counter"`
	Channels [Channels]int16 `json:"channels"`
}

// Valid reports whether p starts with a complete frame with correct markers.
func Valid(p []byte) bool {
	return len(p) >= Size && p[0] == StartA && p[1] == StartB && p[Size-1] == End
}

// Parse decodes exactly one frame from the head of p.
func Parse(p []byte) (Sample, error) {
	if len(p) < Size {
		return Sample{}, ErrShortFrame
	}
	if !Valid(p) {
		return Sample{}, ErrBadMarker
	}
	return decode(p), nil
}

// decode assumes p holds a frame with valid markers.
func decode(p []byte) (s Sample) {
	s.Counter = p[CounterOffset]
	for i := range s.Channels {
		off := PayloadOffset + 2*i
		s.Channels[i] = int16(binary.BigEndian.Uint16(p[off : off+2]))
	}
	return
}

// Encode returns the wire representation of s.
func Encode(s Sample) []byte {
	b := make([]byte, Size)
	b[0], b[1] = StartA, StartB
	b[CounterOffset] = s.Counter
	for i, v := range s.Channels {
		off := PayloadOffset + 2*i
		binary.BigEndian.PutUint16(b[off:off+2], uint16(v))
	}
	b[Size-1] = End
	return b
}
