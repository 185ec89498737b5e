// pipeline/normalizer/normalizer.go
// @tag normalizer, data_transformation
package normalizer

import (
	"errors"
	"fmt"
	"time"

	"bookfeed/internal/endpoint"
	"bookfeed/models"
)

// ErrInvalidSnapshot marks a translated payload that cannot be published.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Message is one decoded upstream frame. Every endpoint family has its own
// variant carrying that family's raw schema; the set is closed to this
// package.
type Message interface {
	family() endpoint.Family
}

// Translator turns raw frames into normalized snapshots. The clock is used
// for families whose frames may lack an exchange timestamp.
type Translator struct {
	now func() time.Time
}

func NewTranslator() *Translator {
	return &Translator{now: time.Now}
}

var defaultTranslator = NewTranslator()

// Translate decodes and normalizes a frame with the wall clock as fallback.
func Translate(family endpoint.Family, raw []byte) (*models.Snapshot, error) {
	return defaultTranslator.Translate(family, raw)
}

// Translate returns (nil, nil) for frames that are not orderbook updates
// (subscription acks, heartbeats, events) and an error for frames that
// cannot be decoded. Both mean the frame is skipped.
func (t *Translator) Translate(family endpoint.Family, raw []byte) (*models.Snapshot, error) {
	msg, err := Decode(family, raw)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return t.translate(msg), nil
}

// Decode parses a raw frame into the variant for the given family.
func Decode(family endpoint.Family, raw []byte) (Message, error) {
	switch family {
	case endpoint.FamilyBinance:
		return decodeBinance(raw)
	case endpoint.FamilyOKXPublic:
		return decodeOkx(raw)
	case endpoint.FamilyHyperliquid:
		return decodeHyperliquid(raw)
	case endpoint.FamilyGeneric:
		return decodeGeneric(raw)
	default:
		return nil, fmt.Errorf("unsupported endpoint family %q", family)
	}
}

func (t *Translator) translate(msg Message) *models.Snapshot {
	now := t.now()
	switch m := msg.(type) {
	case *BinanceDepth:
		return m.snapshot(now)
	case *OkxBooks:
		return m.snapshot(now)
	case *HyperliquidBook:
		return m.snapshot(now)
	case *GenericBook:
		return m.snapshot()
	default:
		return nil
	}
}

// Validate reports whether a translated snapshot is publishable: both sides
// present and non-empty and an exchange timestamp set.
func Validate(s *models.Snapshot) error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: empty payload", ErrInvalidSnapshot)
	case len(s.Bids) == 0:
		return fmt.Errorf("%w: missing bids", ErrInvalidSnapshot)
	case len(s.Asks) == 0:
		return fmt.Errorf("%w: missing asks", ErrInvalidSnapshot)
	case s.Timestamp <= 0:
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSnapshot)
	}
	return nil
}
