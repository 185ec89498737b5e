package metrics

import (
	"sync/atomic"

	"bookfeed/config"
)

var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// Configure applies the metrics section of the configuration. Disabling
// metrics silences EmitMetric; counters keep counting for the report.
func Configure(cfg config.MetricsConfig) {
	metricsEnabled.Store(cfg.Enabled)
}

// Enabled reports whether metric events are emitted.
func Enabled() bool {
	return metricsEnabled.Load()
}
