package manager

import "github.com/prometheus/client_golang/prometheus"

// prometheusTestRegistry returns a fresh registry per test so repeated
// New() calls across the test suite don't collide on the default
// global Prometheus registerer.
func prometheusTestRegistry() prometheus.Registerer {
	return prometheus.NewRegistry()
}
