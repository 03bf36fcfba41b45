package main

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/config"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/hub"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/web"
)

func newRouter(
	ctx context.Context,
	cfg config.HTTPConfig,
	h *hub.Hub,
	ports web.PortLister,
	status func() session.Status,
	gatherer prometheus.Gatherer,
	log logrus.FieldLogger,
) *mux.Router {
	factory := &web.SampleSockClientFactory{
		Ctx:         ctx,
		Hub:         h,
		Ports:       ports,
		Status:      status,
		ReadTimeout: cfg.ClientTimeout,
		Buffer:      cfg.ClientBuffer,
		Log:         log,
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	router := mux.NewRouter()
	router.Use(PanicRecovery(log), LogRemoteAddr(log), LogResponseCode(log))
	router.Handle("/ws", web.SocketHandler(factory, &upgrader))
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		msg := web.StatusMessage{Status: status(), Subscribers: h.Len()}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(&msg); err != nil {
			log.WithError(err).Warn("encode status")
		}
	}).Methods(http.MethodGet)

	// serve static content (index and js bundle)
	if cfg.Static != "" {
		router.PathPrefix("/assets").Handler(http.FileServer(http.Dir(cfg.Static)))
		router.Path("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(cfg.Static, "index.html"))
		})
	}
	return router
}
