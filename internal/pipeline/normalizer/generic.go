package normalizer

import (
	"encoding/json"

	"bookfeed/internal/endpoint"
	"bookfeed/models"
)

// GenericBook is a relay frame that already uses the normalized layout.
type GenericBook struct {
	Bids      []models.Level `json:"bids"`
	Asks      []models.Level `json:"asks"`
	Timestamp msTimestamp    `json:"timestamp"`
}

func (*GenericBook) family() endpoint.Family { return endpoint.FamilyGeneric }

func decodeGeneric(raw []byte) (Message, error) {
	var msg GenericBook
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Bids == nil && msg.Asks == nil && msg.Timestamp == 0 {
		return nil, nil
	}
	return &msg, nil
}

// snapshot passes the relay's fields through; a missing timestamp is left
// for validation to reject.
func (m *GenericBook) snapshot() *models.Snapshot {
	return &models.Snapshot{Bids: m.Bids, Asks: m.Asks, Timestamp: int64(m.Timestamp)}
}
