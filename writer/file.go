package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appconfig "bookfeed/config"
	"bookfeed/internal/metrics"
	"bookfeed/logger"
	"bookfeed/models"
)

// Result is the outcome of a publish attempt.
type Result int

const (
	Published Result = iota
	// Skipped means the update interval had not elapsed; the snapshot is
	// dropped, not deferred.
	Skipped
	// Failed means neither the atomic replace nor the direct write worked.
	Failed
)

func (r Result) String() string {
	switch r {
	case Published:
		return "published"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Mirror receives every payload that reached the output file.
type Mirror interface {
	Offer(payload []byte)
}

// FileWriter publishes the latest snapshot to a single shared file. Readers
// only ever observe the previous or the new document because the payload is
// written to a sibling temp file and renamed over the output path.
type FileWriter struct {
	path    string
	tmpPath string
	mode    os.FileMode
	limiter *rate.Limiter
	mirror  Mirror
	log     *logger.Log

	now       func() time.Time
	rename    func(oldpath, newpath string) error
	writeFile func(name string, data []byte, perm os.FileMode) error

	mu sync.Mutex
}

// Option customizes a FileWriter.
type Option func(*FileWriter)

// WithClock replaces the clock used for the update interval.
func WithClock(now func() time.Time) Option {
	return func(w *FileWriter) { w.now = now }
}

// WithRename replaces the function that moves the temp file into place.
func WithRename(f func(oldpath, newpath string) error) Option {
	return func(w *FileWriter) { w.rename = f }
}

// WithWriteFile replaces the function used for both the temp and the direct
// write.
func WithWriteFile(f func(name string, data []byte, perm os.FileMode) error) Option {
	return func(w *FileWriter) { w.writeFile = f }
}

// WithMirror forwards published payloads to m.
func WithMirror(m Mirror) Option {
	return func(w *FileWriter) { w.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Log) Option {
	return func(w *FileWriter) { w.log = log }
}

// NewFileWriter creates a writer for cfg.OutputFile. An update interval of
// zero publishes every snapshot.
func NewFileWriter(cfg appconfig.PublisherConfig, opts ...Option) (*FileWriter, error) {
	if cfg.OutputFile == "" {
		return nil, fmt.Errorf("publisher output file is required")
	}
	if cfg.UpdateInterval < 0 {
		return nil, fmt.Errorf("publisher update interval must not be negative")
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.UpdateInterval > 0 {
		limit = rate.Every(cfg.UpdateInterval)
	}

	w := &FileWriter{
		path:      cfg.OutputFile,
		tmpPath:   cfg.OutputFile + ".tmp",
		mode:      mode,
		limiter:   rate.NewLimiter(limit, 1),
		log:       logger.GetLogger(),
		now:       time.Now,
		rename:    os.Rename,
		writeFile: os.WriteFile,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path is the canonical output path.
func (w *FileWriter) Path() string { return w.path }

// Publish writes snap if the update interval has elapsed since the last
// successful write. Failures are logged and reported through the result;
// they never stop the caller.
func (w *FileWriter) Publish(snap *models.Snapshot) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !w.limiter.AllowN(now, 1) {
		metrics.IncrementPublishSkipped()
		return Skipped
	}

	log := w.log.WithComponent("publisher").WithFields(logger.Fields{"path": w.path})

	payload, err := json.Marshal(snap)
	if err != nil {
		log.WithError(err).Error("failed to encode snapshot")
		w.dropped()
		return Failed
	}

	if err := w.replace(payload); err != nil {
		log.WithError(err).Warn("atomic replace failed, writing output directly")
		if err := w.writeFile(w.path, payload, w.mode); err != nil {
			log.WithError(err).Error("failed to write snapshot, dropping")
			w.dropped()
			return Failed
		}
	}

	metrics.IncrementPublished()
	if w.mirror != nil {
		w.mirror.Offer(payload)
	}
	log.WithFields(logger.Fields{
		"bytes":     len(payload),
		"timestamp": snap.Timestamp,
	}).Debug("snapshot published")
	return Published
}

func (w *FileWriter) replace(payload []byte) error {
	if err := w.writeFile(w.tmpPath, payload, w.mode); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := w.rename(w.tmpPath, w.path); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// dropped records a failed write and re-arms the gate for the next snapshot.
func (w *FileWriter) dropped() {
	w.limiter = rate.NewLimiter(w.limiter.Limit(), 1)
	metrics.IncrementPublishFailed()
	metrics.EmitDropMetric(w.log, metrics.DropMetricWriteFailed, "", "", "", "publish")
}
