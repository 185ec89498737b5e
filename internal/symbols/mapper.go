package symbols

import (
	"strings"

	"bookfeed/internal/endpoint"
)

// defaultHyperliquidCoin is used when no symbol is configured at all.
const defaultHyperliquidCoin = "BTC"

// Normalize converts a canonical instrument name such as BTC-USDT-SWAP into
// the form the endpoint family expects on the wire. Unknown families get the
// symbol back unchanged.
//
//	BINANCE:     BTC-USDT-SWAP -> btcusdt
//	HYPERLIQUID: BTC-USDT-SWAP -> BTC
//	OKX_PUBLIC:  BTC-USDT-SWAP -> BTC-USDT-SWAP
func Normalize(sym string, family endpoint.Family) string {
	switch family {
	case endpoint.FamilyBinance:
		sym = strings.TrimSuffix(sym, "-SWAP")
		return strings.ToLower(strings.ReplaceAll(sym, "-", ""))
	case endpoint.FamilyHyperliquid:
		if sym == "" {
			return defaultHyperliquidCoin
		}
		base, _, _ := strings.Cut(sym, "-")
		return base
	default:
		// OKX and generic relays use the canonical format
		return sym
	}
}
