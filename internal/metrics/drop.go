package metrics

import "bookfeed/logger"

// DropMetric identifies the metric emitted when a frame or snapshot is dropped
// instead of being published.
type DropMetric string

const (
	// DropMetricUndecodable records frames that could not be parsed.
	DropMetricUndecodable DropMetric = "undecodable_frames_dropped"
	// DropMetricInvalid records translated snapshots that failed validation.
	DropMetricInvalid DropMetric = "invalid_snapshots_dropped"
	// DropMetricWriteFailed records snapshots lost because neither the atomic
	// replace nor the direct write succeeded.
	DropMetricWriteFailed DropMetric = "snapshots_dropped_on_write"
)

// EmitDropMetric emits a counter of one for a dropped item. Optional metadata
// is attached as fields when provided so drops can be aggregated per family
// and stage.
func EmitDropMetric(log *logger.Log, metric DropMetric, family, endpoint, symbol, stage string) {
	fields := logger.Fields{}
	if family != "" {
		fields["family"] = family
	}
	if endpoint != "" {
		fields["endpoint"] = endpoint
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "feed_drops", string(metric), 1, "counter", fields)
}
