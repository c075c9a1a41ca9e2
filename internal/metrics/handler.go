package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the /metrics scrape endpoint the Prometheus exporter
// bridge registered with InitProvider feeds (spec.md §4.15's OTel mirror).
func Handler() http.Handler {
	return promhttp.Handler()
}
