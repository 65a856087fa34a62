// Package metrics defines and registers all custom Prometheus metrics for the
// auth service. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics register themselves with the default Prometheus registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auth"

// ── Auth flow metrics ─────────────────────────────────────────────────────────

// AuthOperationsTotal counts completed auth operations.
// Labels:
//   - operation: "signup", "login", "refresh", "logout", "verify_email", ...
//   - result: "ok" or the error kind returned to the caller (e.g. "invalid_credentials")
var AuthOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of auth operations, by operation and result.",
	},
	[]string{"operation", "result"},
)
