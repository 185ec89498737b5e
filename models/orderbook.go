package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Level is a single price level. On the wire and in the snapshot file it is a
// two element array: ["price", "size"].
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// NewLevel parses a price/size pair given as strings.
func NewLevel(price, size string) (Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return Level{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	s, err := decimal.NewFromString(size)
	if err != nil {
		return Level{}, fmt.Errorf("invalid size %q: %w", size, err)
	}
	return Level{Price: p, Size: s}, nil
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.Price.String(), l.Size.String()})
}

// UnmarshalJSON accepts both quoted and bare numbers. Extra elements, such as
// the order count some venues append, are ignored.
func (l *Level) UnmarshalJSON(data []byte) error {
	var pair []decimal.Decimal
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	if len(pair) < 2 {
		return fmt.Errorf("level: expected [price, size], got %d elements", len(pair))
	}
	l.Price, l.Size = pair[0], pair[1]
	return nil
}

// Snapshot is the normalized orderbook every endpoint family is translated
// into, and the document written to the shared output file.
type Snapshot struct {
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
	Timestamp int64   `json:"timestamp"`  // exchange time, ms since epoch
	LocalTime float64 `json:"local_time"` // ingestion wall clock, seconds
}

// Stamp sets LocalTime from the given wall clock reading.
func (s *Snapshot) Stamp(now time.Time) {
	s.LocalTime = float64(now.UnixNano()) / 1e9
}

// Latency is the distance between the exchange timestamp and the local
// ingestion time. It is zero until the snapshot has been stamped.
func (s *Snapshot) Latency() time.Duration {
	if s.LocalTime == 0 || s.Timestamp == 0 {
		return 0
	}
	localMs := s.LocalTime * 1000
	return time.Duration((localMs - float64(s.Timestamp)) * float64(time.Millisecond))
}
