package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// msTimestamp is an epoch-milliseconds timestamp that venues send as a bare
// number, a quoted number or, for some relays, an RFC 3339 string.
type msTimestamp int64

func (ts *msTimestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			*ts = msTimestamp(v)
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		*ts = msTimestamp(t.UnixMilli())
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if v, err := n.Int64(); err == nil {
		*ts = msTimestamp(v)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", n, err)
	}
	*ts = msTimestamp(int64(f))
	return nil
}

// orNow returns the timestamp, or the clock reading when it is unset.
func (ts msTimestamp) orNow(now time.Time) int64 {
	if ts > 0 {
		return int64(ts)
	}
	return now.UnixMilli()
}
