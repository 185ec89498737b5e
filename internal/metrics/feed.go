package metrics

import (
	"sync"
	"sync/atomic"
)

type familyStat struct {
	frames   int64
	bytes    int64
	failures int64
}

var (
	framesReceived     int64
	framesIgnored      int64
	framesInvalid      int64
	snapshotsPublished int64
	publishSkipped     int64
	publishFailed      int64
	s3Mirrored         int64
	s3MirrorFailed     int64
	connectionFailures int64
	streamingSessions  int64
	reconnectCycles    int64
	families           sync.Map // map[string]*familyStat
)

// FeedCounters is a point-in-time copy of the ingestion counters.
type FeedCounters struct {
	FramesReceived     int64
	FramesIgnored      int64
	FramesInvalid      int64
	SnapshotsPublished int64
	PublishSkipped     int64
	PublishFailed      int64
	S3Mirrored         int64
	S3MirrorFailed     int64
	ConnectionFailures int64
	StreamingSessions  int64
	ReconnectCycles    int64
}

func familyStats(family string) *familyStat {
	v, _ := families.LoadOrStore(family, &familyStat{})
	return v.(*familyStat)
}

// IncrementFrameReceived counts one inbound data frame of size bytes.
func IncrementFrameReceived(family string, size int) {
	atomic.AddInt64(&framesReceived, 1)
	fs := familyStats(family)
	atomic.AddInt64(&fs.frames, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// IncrementFrameIgnored counts a frame that carried no book, such as an ack.
func IncrementFrameIgnored() { atomic.AddInt64(&framesIgnored, 1) }

// IncrementFrameInvalid counts a frame that could not be decoded or failed
// validation.
func IncrementFrameInvalid() { atomic.AddInt64(&framesInvalid, 1) }

func IncrementPublished()      { atomic.AddInt64(&snapshotsPublished, 1) }
func IncrementPublishSkipped() { atomic.AddInt64(&publishSkipped, 1) }
func IncrementPublishFailed()  { atomic.AddInt64(&publishFailed, 1) }

func IncrementS3Mirrored()     { atomic.AddInt64(&s3Mirrored, 1) }
func IncrementS3MirrorFailed() { atomic.AddInt64(&s3MirrorFailed, 1) }

// IncrementConnectionFailure counts a connection cycle that ended in error.
func IncrementConnectionFailure(family string) {
	atomic.AddInt64(&connectionFailures, 1)
	atomic.AddInt64(&familyStats(family).failures, 1)
}

// IncrementStreamingSession counts a connection that reached STREAMING.
func IncrementStreamingSession() { atomic.AddInt64(&streamingSessions, 1) }

// IncrementReconnectCycle counts a full pass over the registry that ended
// in the backoff wait.
func IncrementReconnectCycle() { atomic.AddInt64(&reconnectCycles, 1) }

// Feed returns the current counter values.
func Feed() FeedCounters {
	return FeedCounters{
		FramesReceived:     atomic.LoadInt64(&framesReceived),
		FramesIgnored:      atomic.LoadInt64(&framesIgnored),
		FramesInvalid:      atomic.LoadInt64(&framesInvalid),
		SnapshotsPublished: atomic.LoadInt64(&snapshotsPublished),
		PublishSkipped:     atomic.LoadInt64(&publishSkipped),
		PublishFailed:      atomic.LoadInt64(&publishFailed),
		S3Mirrored:         atomic.LoadInt64(&s3Mirrored),
		S3MirrorFailed:     atomic.LoadInt64(&s3MirrorFailed),
		ConnectionFailures: atomic.LoadInt64(&connectionFailures),
		StreamingSessions:  atomic.LoadInt64(&streamingSessions),
		ReconnectCycles:    atomic.LoadInt64(&reconnectCycles),
	}
}

func familyData() map[string]map[string]int64 {
	out := map[string]map[string]int64{}
	families.Range(func(k, v any) bool {
		fs := v.(*familyStat)
		out[k.(string)] = map[string]int64{
			"frames":   atomic.LoadInt64(&fs.frames),
			"bytes":    atomic.LoadInt64(&fs.bytes),
			"failures": atomic.LoadInt64(&fs.failures),
		}
		return true
	})
	return out
}
