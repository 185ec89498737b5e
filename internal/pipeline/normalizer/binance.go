// pipeline/normalizer/binance.go
// @tag normalizer, binance
package normalizer

import (
	"bytes"
	"encoding/json"
	"time"

	"bookfeed/internal/endpoint"
	"bookfeed/models"
)

// BinanceDepth is a Binance depth payload. Partial book snapshots use
// bids/asks, the futures depth stream uses the b/a short keys.
type BinanceDepth struct {
	Event        string         `json:"e"`
	Symbol       string         `json:"s"`
	EventTime    int64          `json:"E"`
	TransactTime int64          `json:"T"`
	Bids         []models.Level `json:"bids"`
	Asks         []models.Level `json:"asks"`
	StreamBids   []models.Level `json:"b"`
	StreamAsks   []models.Level `json:"a"`
}

func (*BinanceDepth) family() endpoint.Family { return endpoint.FamilyBinance }

type binanceEnvelope struct {
	Result json.RawMessage `json:"result"`
}

func decodeBinance(raw []byte) (Message, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	body := raw
	if len(env.Result) > 0 {
		// {"result":null,"id":1} acknowledges a SUBSCRIBE request
		if bytes.Equal(bytes.TrimSpace(env.Result), []byte("null")) || env.Result[0] != '{' {
			return nil, nil
		}
		body = env.Result
	}

	var depth BinanceDepth
	if err := json.Unmarshal(body, &depth); err != nil {
		return nil, err
	}
	if depth.Bids == nil && depth.Asks == nil && depth.StreamBids == nil && depth.StreamAsks == nil {
		return nil, nil
	}
	return &depth, nil
}

func (m *BinanceDepth) snapshot(now time.Time) *models.Snapshot {
	bids, asks := m.Bids, m.Asks
	if bids == nil && asks == nil {
		bids, asks = m.StreamBids, m.StreamAsks
	}
	ts := m.TransactTime
	if ts <= 0 {
		ts = m.EventTime
	}
	if ts <= 0 {
		ts = now.UnixMilli()
	}
	return &models.Snapshot{Bids: bids, Asks: asks, Timestamp: ts}
}
