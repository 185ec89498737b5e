package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"bookfeed/models"
)

// ReadLatest loads the snapshot currently at path along with the file's
// modification time, which consumers use to detect a new publish.
func ReadLatest(path string) (*models.Snapshot, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, info.ModTime(), fmt.Errorf("decode %s: %w", path, err)
	}
	return &snap, info.ModTime(), nil
}
