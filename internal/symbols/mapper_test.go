package symbols

import (
	"strings"
	"testing"

	"bookfeed/internal/endpoint"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		family endpoint.Family
		in     string
		want   string
	}{
		{endpoint.FamilyBinance, "BTC-USDT-SWAP", "btcusdt"},
		{endpoint.FamilyBinance, "ETH-USDT-SWAP", "ethusdt"},
		{endpoint.FamilyBinance, "BTC-USDT", "btcusdt"},
		{endpoint.FamilyBinance, "SOLUSDT", "solusdt"},
		{endpoint.FamilyHyperliquid, "BTC-USDT-SWAP", "BTC"},
		{endpoint.FamilyHyperliquid, "ETH", "ETH"},
		{endpoint.FamilyHyperliquid, "", "BTC"},
		{endpoint.FamilyOKXPublic, "BTC-USDT-SWAP", "BTC-USDT-SWAP"},
		{endpoint.FamilyGeneric, "BTC-USDT-SWAP", "BTC-USDT-SWAP"},
		{endpoint.Family("KRAKEN"), "XBT/USD", "XBT/USD"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in, tt.family); got != tt.want {
			t.Errorf("Normalize(%s,%s)=%s want %s", tt.in, tt.family, got, tt.want)
		}
	}
}

func TestNormalizeBinanceSwapSymbols(t *testing.T) {
	for _, base := range []string{"BTC", "ETH", "DOGE", "1000PEPE"} {
		in := base + "-USDT-SWAP"
		got := Normalize(in, endpoint.FamilyBinance)
		if strings.Contains(got, "-") || strings.Contains(strings.ToUpper(got), "SWAP") {
			t.Errorf("Normalize(%s) kept separators or suffix: %s", in, got)
		}
		if got != strings.ToLower(got) {
			t.Errorf("Normalize(%s) not lowercase: %s", in, got)
		}
	}
}
