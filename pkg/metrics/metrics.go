package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend metrics
	BackendOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohesix_backend_ops_total",
			Help: "Total number of backend operations by backend and op",
		},
		[]string{"backend", "op"},
	)

	BackendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohesix_backend_errors_total",
			Help: "Total number of failed backend operations by backend and op",
		},
		[]string{"backend", "op"},
	)

	BackendBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohesix_backend_bytes_total",
			Help: "Total bytes moved through backends by direction",
		},
		[]string{"backend", "direction"},
	)

	// Console metrics
	ConsoleFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohesix_console_frames_total",
			Help: "Total console frames by direction",
		},
		[]string{"direction"},
	)

	ConsoleProtocolErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cohesix_console_protocol_errors_total",
			Help: "Total console protocol violations",
		},
	)

	ConsoleHandshakePolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cohesix_console_handshake_polls_total",
			Help: "Total response lines polled during AUTH/ATTACH handshakes",
		},
	)
)

func init() {
	prometheus.MustRegister(BackendOps)
	prometheus.MustRegister(BackendErrors)
	prometheus.MustRegister(BackendBytes)
	prometheus.MustRegister(ConsoleFrames)
	prometheus.MustRegister(ConsoleProtocolErrors)
	prometheus.MustRegister(ConsoleHandshakePolls)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
