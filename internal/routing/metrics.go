package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var routeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "route_requests_total",
	Help: "Route computations grouped by the provider that served them.",
}, []string{"source"})
