package derive

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-aggregator/internal/errors"
)

const hubAddress = "cosmos158duhhed5hetqrege957h0rq98jadl6luta5k5"

func TestDerive_OsmosisRoundTrip(t *testing.T) {
	got, err := Derive(hubAddress, []Target{{Symbol: "OSMO", Prefix: "osmo", Derivable: true}}, nil)
	require.NoError(t, err)

	osmo := got["OSMO"]
	require.True(t, strings.HasPrefix(osmo, "osmo1"), osmo)

	_, basePayload, err := Payload(hubAddress)
	require.NoError(t, err)
	hrp, derivedPayload, err := Payload(osmo)
	require.NoError(t, err)

	assert.Equal(t, "osmo", hrp)
	assert.Len(t, basePayload, 20)
	assert.Equal(t, basePayload, derivedPayload)
}

func TestDerive_Overrides(t *testing.T) {
	targets := []Target{
		{Symbol: "ATOM", Prefix: "cosmos", Derivable: true},
		{Symbol: "INJ", Prefix: "inj", Derivable: false},
		{Symbol: "EVMOS", Prefix: "evmos", Derivable: false},
	}
	got, err := Derive(hubAddress, targets, map[string]string{"INJ": "inj1fixed"})
	require.NoError(t, err)

	assert.Equal(t, hubAddress, got["ATOM"])
	assert.Equal(t, "inj1fixed", got["INJ"])
	_, ok := got["EVMOS"]
	assert.False(t, ok, "non-derivable chain without override must be skipped")
}

func TestDerive_InvalidAddress(t *testing.T) {
	for _, in := range []string{"", "not-bech32", "cosmos158duhhed5hetqrege957h0rq98jadl6luta5k6"} {
		_, err := Derive(in, []Target{{Symbol: "OSMO", Prefix: "osmo", Derivable: true}}, nil)
		require.Error(t, err, in)
		assert.Equal(t, apperrors.CodeInvalidAddressFormat, apperrors.Categorize(err).Code)
	}
}

func TestDerive_PayloadPreservedProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	prefixes := gen.OneConstOf("osmo", "juno", "akash", "celestia", "dydx")
	payloads := gen.SliceOfN(20, gen.UInt8())

	properties.Property("re-prefixing preserves key bytes", prop.ForAll(
		func(raw []uint8, prefix string) bool {
			base, err := Encode("cosmos", raw)
			if err != nil {
				return false
			}
			got, err := Derive(base, []Target{{Symbol: "X", Prefix: prefix, Derivable: true}}, nil)
			if err != nil {
				return false
			}
			hrp, back, err := Payload(got["X"])
			if err != nil || hrp != prefix || len(back) != len(raw) {
				return false
			}
			for i := range raw {
				if back[i] != raw[i] {
					return false
				}
			}
			return true
		},
		payloads,
		prefixes,
	))

	properties.TestingRun(t)
}
