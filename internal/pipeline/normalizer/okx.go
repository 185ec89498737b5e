// pipeline/normalizer/okx.go
// @tag normalizer, okx
package normalizer

import (
	"encoding/json"
	"time"

	"bookfeed/internal/endpoint"
	"bookfeed/models"
)

const okxBooksChannel = "books"

// OkxBooks is a push on the OKX v5 public "books" channel.
type OkxBooks struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string    `json:"action"`
	Data   []okxBook `json:"data"`
}

type okxBook struct {
	Bids []models.Level `json:"bids"`
	Asks []models.Level `json:"asks"`
	Ts   msTimestamp    `json:"ts"`
}

func (*OkxBooks) family() endpoint.Family { return endpoint.FamilyOKXPublic }

func decodeOkx(raw []byte) (Message, error) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	// subscribe acks and error notices carry an "event" key
	if _, ok := base["event"]; ok {
		return nil, nil
	}
	if _, ok := base["data"]; !ok {
		return nil, nil
	}

	var msg OkxBooks
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Arg.Channel != okxBooksChannel {
		return nil, nil
	}
	return &msg, nil
}

// snapshot takes the first book of the push. An empty data array yields an
// empty snapshot which validation rejects.
func (m *OkxBooks) snapshot(now time.Time) *models.Snapshot {
	if len(m.Data) == 0 {
		return &models.Snapshot{}
	}
	book := m.Data[0]
	return &models.Snapshot{
		Bids:      book.Bids,
		Asks:      book.Asks,
		Timestamp: book.Ts.orNow(now),
	}
}
