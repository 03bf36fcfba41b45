package web

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Http handler for ws endpoint
func SocketHandler(factory SockHandlerFactory, upgrader *websocket.Upgrader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).WithField("remote", r.RemoteAddr).Warn("upgrade error")
			return
		}
		defer ws.Close()
		if handler := factory.New(ws); handler != nil {
			go handler.Write()
			handler.Read()
		}
	})
}
