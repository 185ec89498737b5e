package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookfeed/internal/endpoint"
	"bookfeed/internal/symbols"
)

func TestSubscriptionFrame(t *testing.T) {
	tests := []struct {
		family endpoint.Family
		want   string
	}{
		{endpoint.FamilyOKXPublic, `{"op":"subscribe","args":[{"channel":"books","instId":"BTC-USDT-SWAP"}]}`},
		{endpoint.FamilyBinance, `{"method":"SUBSCRIBE","params":["btcusdt@depth"],"id":1}`},
		{endpoint.FamilyHyperliquid, `{"method":"subscribe","subscription":{"type":"l2Book","coin":"BTC"}}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.family), func(t *testing.T) {
			frame, err := SubscriptionFrame(tt.family, symbols.Normalize("BTC-USDT-SWAP", tt.family))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(frame))
		})
	}
}

func TestSubscriptionFrameGenericSendsNothing(t *testing.T) {
	frame, err := SubscriptionFrame(endpoint.FamilyGeneric, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Nil(t, frame)
	assert.False(t, endpoint.FamilyGeneric.NeedsSubscription())
}
