package main

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type proxyResponseWriter struct {
	// helper struct to extract http response code
	// once handler returns
	http.ResponseWriter
	code int
}

func (rwi *proxyResponseWriter) WriteHeader(code int) {
	rwi.code = code
	rwi.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the proxy writer.
func (rwi *proxyResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rwi.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	rwi.code = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func LogRemoteAddr(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.WithField("remote", r.RemoteAddr).Debugf("%s %v", r.Method, r.URL)
			next.ServeHTTP(w, r)
		})
	}
}

// LogResponseCode logs requests with their response codes. The code is
// 200 by default as handlers may never call WriteHeader.
func LogResponseCode(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proxyWriter := &proxyResponseWriter{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(proxyWriter, r)
			log.WithFields(logrus.Fields{
				"code":     proxyWriter.code,
				"duration": time.Since(start),
			}).Infof("%s %v", r.Method, r.URL)
		})
	}
}

// PanicRecovery responds with 500 if a handler panics.
func PanicRecovery(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithField("panic", err).Error("handler panicked")
					http.Error(
						w,
						http.StatusText(http.StatusInternalServerError),
						http.StatusInternalServerError,
					)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
