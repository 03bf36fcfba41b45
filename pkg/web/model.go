package web

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/frame"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
)

type SockHandler interface {
	Read()
	Write()
}

// Creates and manages
type SockHandlerFactory interface {
	New(*websocket.Conn) SockHandler
}

// Message format for ws requests from clients.
// Timeout is the per-sample wait of a read, in milliseconds.
type SerialRequest struct {
	Method  string `json:"method"`
	Timeout int64  `json:"timeout,omitempty"`
}

// Response format of ws server
type SampleMessage struct {
	Serial   string                `json:"serial"`
	Counter  uint8                 `json:"counter"`
	Channels [frame.Channels]int16 `json:"channels"`
	Iat      time.Time             `json:"iat"`
}

type DiscoverySerialMessage struct {
	Serials []string  `json:"serials"`
	Active  string    `json:"active,omitempty"`
	Iat     time.Time `json:"iat"`
}

type StatusMessage struct {
	session.Status
	Subscribers int `json:"subscribers"`
}

type ErrorSerialMessage struct {
	Serial string `json:"serial,omitempty"`
	Error  string `json:"error"`
}

func JsonifyError(err error, serial string) []byte {
	msg, mErr := json.Marshal(&ErrorSerialMessage{
		Serial: serial,
		Error:  err.Error(),
	})
	if mErr != nil {
		logrus.WithError(mErr).Panic("marshal error message")
	}
	return msg
}
