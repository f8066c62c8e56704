// Package handlers exposes the probe and metrics endpoints.
package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	healthstate "github.com/feedherald/feedherald/pkg/health"
	"github.com/hellofresh/health-go/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	state       *healthstate.State
	healthCheck *health.Health
}

func New(state *healthstate.State, version string) *Handler {
	h, _ := health.New(health.WithComponent(health.Component{
		Name:    "feedherald",
		Version: version,
	}), health.WithChecks(health.Config{
		Name:      "self",
		Timeout:   time.Second * 5,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			return nil
		},
	},
	))

	return &Handler{state: state, healthCheck: h}
}

func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheck.HandlerFunc)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *Handler) HandleReadyz(writer http.ResponseWriter, _ *http.Request) {
	if h.state.IsReady() {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
		return
	}
	writer.WriteHeader(http.StatusServiceUnavailable)
	_, _ = writer.Write([]byte("not ready"))
}

// Serve blocks serving the probe endpoints.
func (h *Handler) Serve(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("[INFO] serving probes and metrics on %s", addr)
	return http.ListenAndServe(addr, h.Router())
}
