// pipeline/normalizer/hyperliquid.go
// @tag normalizer, hyperliquid
package normalizer

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"bookfeed/internal/endpoint"
	"bookfeed/models"
)

const hyperliquidBookChannel = "l2Book"

// HyperliquidBook is an l2Book push. Levels holds [bids, asks].
type HyperliquidBook struct {
	Channel string `json:"channel"`
	Data    struct {
		Coin   string               `json:"coin"`
		Time   msTimestamp          `json:"time"`
		Levels [][]hyperliquidLevel `json:"levels"`
	} `json:"data"`
}

type hyperliquidLevel struct {
	Px decimal.Decimal `json:"px"`
	Sz decimal.Decimal `json:"sz"`
	N  int             `json:"n"`
}

func (*HyperliquidBook) family() endpoint.Family { return endpoint.FamilyHyperliquid }

func decodeHyperliquid(raw []byte) (Message, error) {
	var head struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	// subscriptionResponse, pong and other channels are not books
	if head.Channel != hyperliquidBookChannel || len(head.Data) == 0 {
		return nil, nil
	}
	var msg HyperliquidBook
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *HyperliquidBook) snapshot(now time.Time) *models.Snapshot {
	side := func(i int) []models.Level {
		if i >= len(m.Data.Levels) {
			return nil
		}
		out := make([]models.Level, 0, len(m.Data.Levels[i]))
		for _, lvl := range m.Data.Levels[i] {
			out = append(out, models.Level{Price: lvl.Px, Size: lvl.Sz})
		}
		return out
	}
	return &models.Snapshot{
		Bids:      side(0),
		Asks:      side(1),
		Timestamp: m.Data.Time.orNow(now),
	}
}
