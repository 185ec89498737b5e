package writer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	appconfig "bookfeed/config"
	"bookfeed/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testSnapshot(t *testing.T, ts int64) *models.Snapshot {
	t.Helper()
	bid, err := models.NewLevel("65000.1", "1.5")
	if err != nil {
		t.Fatal(err)
	}
	ask, err := models.NewLevel("65000.2", "0.7")
	if err != nil {
		t.Fatal(err)
	}
	s := &models.Snapshot{Bids: []models.Level{bid}, Asks: []models.Level{ask}, Timestamp: ts}
	s.Stamp(time.UnixMilli(ts + 25))
	return s
}

func newTestWriter(t *testing.T, interval time.Duration, opts ...Option) (*FileWriter, *fakeClock, string) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	path := filepath.Join(t.TempDir(), "latest_orderbook.json")
	opts = append([]Option{WithClock(clock.now)}, opts...)
	w, err := NewFileWriter(appconfig.PublisherConfig{OutputFile: path, UpdateInterval: interval}, opts...)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	return w, clock, path
}

func readTimestamp(t *testing.T, path string) int64 {
	t.Helper()
	snap, _, err := ReadLatest(path)
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	return snap.Timestamp
}

func TestPublishWritesDocument(t *testing.T) {
	w, _, path := newTestWriter(t, 500*time.Millisecond)

	if got := w.Publish(testSnapshot(t, 1700000000000)); got != Published {
		t.Fatalf("expected Published, got %s", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not a JSON object: %v", err)
	}
	for _, key := range []string{"bids", "asks", "timestamp", "local_time"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
	if string(doc["bids"]) != `[["65000.1","1.5"]]` {
		t.Fatalf("unexpected bids encoding: %s", doc["bids"])
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestPublishRateLimit(t *testing.T) {
	w, clock, path := newTestWriter(t, 500*time.Millisecond)

	if got := w.Publish(testSnapshot(t, 1)); got != Published {
		t.Fatalf("first publish: %s", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	clock.advance(100 * time.Millisecond)
	if got := w.Publish(testSnapshot(t, 2)); got != Skipped {
		t.Fatalf("expected Skipped inside the interval, got %s", got)
	}
	clock.advance(399 * time.Millisecond)
	if got := w.Publish(testSnapshot(t, 3)); got != Skipped {
		t.Fatalf("expected Skipped just before the interval, got %s", got)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(info.ModTime()) || readTimestamp(t, path) != 1 {
		t.Fatalf("skipped snapshot touched the output file")
	}

	clock.advance(time.Millisecond)
	if got := w.Publish(testSnapshot(t, 4)); got != Published {
		t.Fatalf("expected Published once the interval elapsed, got %s", got)
	}
	if ts := readTimestamp(t, path); ts != 4 {
		t.Fatalf("expected newest snapshot on disk, got timestamp %d", ts)
	}
}

func TestPublishZeroIntervalWritesEverySnapshot(t *testing.T) {
	w, _, path := newTestWriter(t, 0)
	for i := int64(1); i <= 5; i++ {
		if got := w.Publish(testSnapshot(t, i)); got != Published {
			t.Fatalf("publish %d: %s", i, got)
		}
	}
	if ts := readTimestamp(t, path); ts != 5 {
		t.Fatalf("expected last snapshot, got %d", ts)
	}
}

func TestPublishFallsBackToDirectWrite(t *testing.T) {
	w, _, path := newTestWriter(t, 0, WithRename(func(string, string) error {
		return errors.New("cross-device link")
	}))

	if got := w.Publish(testSnapshot(t, 42)); got != Published {
		t.Fatalf("expected Published via direct write, got %s", got)
	}
	if ts := readTimestamp(t, path); ts != 42 {
		t.Fatalf("unexpected timestamp %d", ts)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind after failed rename: %v", err)
	}
}

func TestPublishDropsWhenBothWritesFail(t *testing.T) {
	failing := func(string, []byte, os.FileMode) error { return errors.New("disk full") }
	w, clock, path := newTestWriter(t, time.Second, WithWriteFile(failing))

	if got := w.Publish(testSnapshot(t, 1)); got != Failed {
		t.Fatalf("expected Failed, got %s", got)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output should not exist: %v", err)
	}

	// a failed write does not count as the last successful write
	w.writeFile = os.WriteFile
	clock.advance(10 * time.Millisecond)
	if got := w.Publish(testSnapshot(t, 2)); got != Published {
		t.Fatalf("expected Published after a failed write, got %s", got)
	}
}

func TestReadersNeverSeePartialDocument(t *testing.T) {
	w, _, path := newTestWriter(t, 0)
	if got := w.Publish(testSnapshot(t, 1)); got != Published {
		t.Fatalf("seed publish: %s", got)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ts := int64(2); ; ts++ {
			select {
			case <-stop:
				return
			default:
			}
			w.Publish(testSnapshot(t, ts))
		}
	}()

	for i := 0; i < 200; i++ {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			close(stop)
			wg.Wait()
			t.Fatalf("reader observed a partial document: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

type recordingMirror struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (m *recordingMirror) Offer(p []byte) {
	m.mu.Lock()
	m.payloads = append(m.payloads, p)
	m.mu.Unlock()
}

func TestPublishOffersToMirror(t *testing.T) {
	mirror := &recordingMirror{}
	w, clock, _ := newTestWriter(t, time.Second, WithMirror(mirror))

	w.Publish(testSnapshot(t, 1))
	clock.advance(10 * time.Millisecond)
	w.Publish(testSnapshot(t, 2))

	if len(mirror.payloads) != 1 {
		t.Fatalf("expected only published payloads to be mirrored, got %d", len(mirror.payloads))
	}
}

func TestNewFileWriterValidation(t *testing.T) {
	if _, err := NewFileWriter(appconfig.PublisherConfig{}); err == nil {
		t.Fatal("expected error for empty output path")
	}
	if _, err := NewFileWriter(appconfig.PublisherConfig{OutputFile: "x", UpdateInterval: -time.Second}); err == nil {
		t.Fatal("expected error for negative interval")
	}
	if _, err := NewFileWriter(appconfig.PublisherConfig{OutputFile: "x", FileMode: "999"}); err == nil {
		t.Fatal("expected error for bad file mode")
	}
}

func TestReadLatestMissingFile(t *testing.T) {
	if _, _, err := ReadLatest(filepath.Join(t.TempDir(), "absent.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
