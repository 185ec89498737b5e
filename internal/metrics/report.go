package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"bookfeed/logger"
)

// Reporter periodically logs host statistics, the feed counters and the
// latency summary, and pushes them to CloudWatch when it is configured.
type Reporter struct {
	log      *logger.Log
	interval time.Duration
	latency  *LatencyRing
	// diskPath is the directory whose volume usage is reported, normally the
	// one holding the snapshot file.
	diskPath string
}

func NewReporter(log *logger.Log, interval time.Duration, latency *LatencyRing, diskPath string) *Reporter {
	if log == nil {
		log = logger.GetLogger()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if diskPath == "" {
		diskPath = "."
	}
	return &Reporter{log: log, interval: interval, latency: latency, diskPath: diskPath}
}

// Start runs the report loop until ctx is done.
func (r *Reporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Report(ctx)
			}
		}
	}()
}

// Report emits one report immediately.
func (r *Reporter) Report(ctx context.Context) logger.Fields {
	fields := r.collect()
	r.log.WithComponent("report").WithFields(fields).Info("runtime report")

	if state := cwState.Load(); state != nil && state.client != nil {
		publishMetricsFunc(ctx, state, reportData(fields))
	}
	return fields
}

func (r *Reporter) collect() logger.Fields {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memMB := int64(0)
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = int64(vm.Used) / 1024 / 1024
	}
	diskMB := int64(0)
	if du, err := disk.Usage(r.diskPath); err == nil {
		diskMB = int64(du.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if netStats, err := gnet.IOCounters(false); err == nil && len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	feed := Feed()
	fields := logger.Fields{
		"frames_received":     feed.FramesReceived,
		"frames_ignored":      feed.FramesIgnored,
		"frames_invalid":      feed.FramesInvalid,
		"snapshots_published": feed.SnapshotsPublished,
		"publish_skipped":     feed.PublishSkipped,
		"publish_failed":      feed.PublishFailed,
		"s3_mirrored":         feed.S3Mirrored,
		"s3_mirror_failed":    feed.S3MirrorFailed,
		"connection_failures": feed.ConnectionFailures,
		"streaming_sessions":  feed.StreamingSessions,
		"reconnect_cycles":    feed.ReconnectCycles,
		"families":            familyData(),
		"warns":               logger.WarnCounts(),
		"errors":              logger.ErrorCounts(),
		"goroutines":          runtime.NumGoroutine(),
		"cpu_percent":         cpuPct,
		"memory_mb":           memMB,
		"disk_mb":             diskMB,
		"net_bytes_sent":      int64(bytesSent),
		"net_bytes_recv":      int64(bytesRecv),
	}
	if r.latency != nil {
		for k, v := range r.latency.Stats().Fields() {
			fields[k] = v
		}
	}
	return fields
}

func reportData(fields logger.Fields) []cwtypes.MetricDatum {
	datum := func(name string, unit cwtypes.StandardUnit, v float64) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{MetricName: aws.String(name), Unit: unit, Value: aws.Float64(v)}
	}
	count := func(key string) float64 {
		if v, ok := fields[key].(int64); ok {
			return float64(v)
		}
		return 0
	}
	milli := func(key string) float64 {
		if v, ok := fields[key].(float64); ok {
			return v
		}
		return 0
	}

	data := []cwtypes.MetricDatum{
		datum("FramesReceived", cwtypes.StandardUnitCount, count("frames_received")),
		datum("FramesInvalid", cwtypes.StandardUnitCount, count("frames_invalid")),
		datum("SnapshotsPublished", cwtypes.StandardUnitCount, count("snapshots_published")),
		datum("PublishSkipped", cwtypes.StandardUnitCount, count("publish_skipped")),
		datum("PublishFailed", cwtypes.StandardUnitCount, count("publish_failed")),
		datum("ConnectionFailures", cwtypes.StandardUnitCount, count("connection_failures")),
		datum("StreamingSessions", cwtypes.StandardUnitCount, count("streaming_sessions")),
		datum("ReconnectCycles", cwtypes.StandardUnitCount, count("reconnect_cycles")),
		datum("CPUPercent", cwtypes.StandardUnitPercent, milli("cpu_percent")),
		datum("MemoryMB", cwtypes.StandardUnitMegabytes, count("memory_mb")),
		datum("Goroutines", cwtypes.StandardUnitCount, float64(runtime.NumGoroutine())),
	}
	if _, ok := fields["latency_samples"]; ok {
		data = append(data,
			datum("LatencyP50", cwtypes.StandardUnitMilliseconds, milli("latency_p50_ms")),
			datum("LatencyP95", cwtypes.StandardUnitMilliseconds, milli("latency_p95_ms")),
			datum("LatencyMax", cwtypes.StandardUnitMilliseconds, milli("latency_max_ms")),
		)
	}
	return data
}
