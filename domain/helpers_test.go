package domain

import "github.com/prometheus/client_golang/prometheus"

// newTestRegistry returns a fresh Prometheus registry per test so the
// embedded manager.Manager's metrics don't collide with the global
// default registerer across the test suite.
func newTestRegistry() prometheus.Registerer {
	return prometheus.NewRegistry()
}
