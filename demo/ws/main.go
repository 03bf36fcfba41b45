package main

import (
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/web"
)

func main() {
	// sample websocket client (used as a demo and for debugging)
	// this one performs a single action: discover, status or read
	method := web.MethodRead
	flag.StringVar(&method, "action", method, "read/discover/status")
	socketUrl := "ws://localhost:8080/ws"
	flag.StringVar(&socketUrl, "url", socketUrl, "websocket endpoint")
	duration := flag.Duration("for", 10*time.Second, "how long to read before asking to stop")
	flag.Parse()

	log := logrus.New()
	done := make(chan struct{})
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	conn, _, err := websocket.DefaultDialer.Dial(socketUrl, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	go func() {
		defer close(done)
		for {
			// read timeout is updated on each iteration,
			// just like on server side
			conn.SetReadDeadline(time.Now().Add(30 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.WithError(err).Info("reader finished")
				return
			}
			log.Println(string(msg))
		}
	}()

	request := web.SerialRequest{
		Method:  method,
		Timeout: (5 * time.Second).Milliseconds(),
	}
	if err = conn.WriteJSON(&request); err != nil {
		log.WithError(err).Fatal("ws write")
	}

	if method == web.MethodRead {
		// ask server to stop streaming after a while
		select {
		case <-time.After(*duration):
		case <-interrupt:
		}
		if err = conn.WriteJSON(&web.SerialRequest{Method: web.MethodStop}); err != nil {
			log.WithError(err).Fatal("ws write")
		}
	}
	select {
	case <-time.After(time.Second):
	case <-interrupt:
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
