// Package endpoint holds the ordered list of candidate WebSocket endpoints the
// client fails over between.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Family groups endpoints that share wire conventions.
type Family string

const (
	FamilyOKXPublic   Family = "OKX_PUBLIC"
	FamilyBinance     Family = "BINANCE"
	FamilyHyperliquid Family = "HYPERLIQUID"
	FamilyGeneric     Family = "GENERIC"
)

// ParseFamily maps a configured family name onto a Family. Names are case
// insensitive and "okx" is accepted as shorthand for OKX_PUBLIC.
func ParseFamily(s string) (Family, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OKX_PUBLIC", "OKX":
		return FamilyOKXPublic, nil
	case "BINANCE":
		return FamilyBinance, nil
	case "HYPERLIQUID":
		return FamilyHyperliquid, nil
	case "GENERIC":
		return FamilyGeneric, nil
	default:
		return "", fmt.Errorf("unknown endpoint family %q", s)
	}
}

// InferFamily guesses the family from the endpoint host. Relays and
// aggregators that merely mention an exchange in their path are GENERIC.
func InferFamily(rawURL string) Family {
	host := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = strings.ToLower(u.Hostname())
	}
	switch {
	case strings.Contains(host, "binance"):
		return FamilyBinance
	case strings.Contains(host, "hyperliquid"):
		return FamilyHyperliquid
	case strings.HasSuffix(host, "okx.com"):
		return FamilyOKXPublic
	default:
		return FamilyGeneric
	}
}

// NeedsSubscription reports whether the family expects a subscribe frame
// after the handshake.
func (f Family) NeedsSubscription() bool {
	switch f {
	case FamilyOKXPublic, FamilyBinance, FamilyHyperliquid:
		return true
	default:
		return false
	}
}

// Endpoint is one candidate feed. URLTemplate may contain a {symbol}
// placeholder that is replaced by the family's wire symbol.
type Endpoint struct {
	URLTemplate string
	Family      Family
}

// URL formats the template for the given wire symbol.
func (e Endpoint) URL(wireSymbol string) string {
	u := strings.ReplaceAll(e.URLTemplate, "{symbol}", wireSymbol)
	return strings.ReplaceAll(u, "{}", wireSymbol)
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s(%s)", e.Family, e.URLTemplate)
}

// Registry is the immutable, ordered candidate list. An endpoint's identity is
// its position.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry copies the given endpoints. An empty list is rejected since the
// failover cycle needs at least one candidate.
func NewRegistry(endpoints []Endpoint) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("endpoint registry requires at least one endpoint")
	}
	out := make([]Endpoint, len(endpoints))
	for i, ep := range endpoints {
		if strings.TrimSpace(ep.URLTemplate) == "" {
			return nil, fmt.Errorf("endpoint %d has an empty url", i)
		}
		if ep.Family == "" {
			ep.Family = InferFamily(ep.URLTemplate)
		}
		out[i] = ep
	}
	return &Registry{endpoints: out}, nil
}

// Len returns the number of candidates.
func (r *Registry) Len() int { return len(r.endpoints) }

// At returns the endpoint at index i, wrapping around the registry.
func (r *Registry) At(i int) Endpoint {
	n := len(r.endpoints)
	return r.endpoints[((i%n)+n)%n]
}

// Endpoints returns a copy of the candidate list.
func (r *Registry) Endpoints() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Defaults is the built-in candidate list, primary first.
func Defaults() []Endpoint {
	return []Endpoint{
		{URLTemplate: "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/{symbol}", Family: FamilyGeneric},
		{URLTemplate: "wss://ws.okx.com:8443/ws/v5/public", Family: FamilyOKXPublic},
		{URLTemplate: "wss://fstream.binance.com/ws/{symbol}@depth20@100ms", Family: FamilyBinance},
		{URLTemplate: "wss://api.hyperliquid.xyz/ws", Family: FamilyHyperliquid},
		{URLTemplate: "wss://api.websocket.in/crypto/orderbook/{symbol}", Family: FamilyGeneric},
		{URLTemplate: "wss://crypto-ws.coinapi.io/v1/", Family: FamilyGeneric},
	}
}
