package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "opsflow_gateway_connections",
	Help: "Open websocket connections on this gateway node.",
})
