package reader

import (
	"encoding/json"

	"bookfeed/internal/endpoint"
)

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxSubscribe struct {
	Op   string   `json:"op"`
	Args []okxArg `json:"args"`
}

type binanceSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

type hyperliquidSubscription struct {
	Type string `json:"type"`
	Coin string `json:"coin"`
}

type hyperliquidSubscribe struct {
	Method       string                  `json:"method"`
	Subscription hyperliquidSubscription `json:"subscription"`
}

// SubscriptionFrame returns the frame sent after the handshake for family, or
// nil when the family streams without subscribing. wire is the symbol already
// normalized for the family.
func SubscriptionFrame(family endpoint.Family, wire string) ([]byte, error) {
	var req interface{}
	switch family {
	case endpoint.FamilyOKXPublic:
		req = okxSubscribe{Op: "subscribe", Args: []okxArg{{Channel: "books", InstID: wire}}}
	case endpoint.FamilyBinance:
		req = binanceSubscribe{Method: "SUBSCRIBE", Params: []string{wire + "@depth"}, ID: 1}
	case endpoint.FamilyHyperliquid:
		req = hyperliquidSubscribe{
			Method:       "subscribe",
			Subscription: hyperliquidSubscription{Type: "l2Book", Coin: wire},
		}
	default:
		return nil, nil
	}
	return json.Marshal(req)
}
