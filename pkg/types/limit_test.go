package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlimitedAlwaysAllows(t *testing.T) {
	l := Unlimited()
	for _, current := range []int64{0, 1, 5, 1 << 40} {
		assert.True(t, l.Allows(current), "current=%d", current)
		assert.False(t, l.Exceeded(current))
	}
	_, ok := l.Percentage(10)
	assert.False(t, ok, "percentage is undefined for unlimited")
}

func TestFiniteLimitBoundaries(t *testing.T) {
	l := Finite(5)
	assert.True(t, l.Allows(4))
	assert.False(t, l.Allows(5))
	assert.False(t, l.Exceeded(5))
	assert.True(t, l.Exceeded(6))

	pct, ok := l.Percentage(4)
	require.True(t, ok)
	assert.Equal(t, 80.0, pct)
}

func TestZeroLimitBlocks(t *testing.T) {
	l := Finite(0)
	assert.False(t, l.Allows(0))
	pct, ok := l.Percentage(0)
	require.True(t, ok)
	assert.Equal(t, 100.0, pct)
}

func TestStoredRoundTrip(t *testing.T) {
	assert.True(t, LimitFromStored(-1).IsUnlimited())
	assert.Equal(t, int64(-1), Unlimited().Stored())
	assert.Equal(t, int64(0), LimitFromStored(-7).Stored())
	max, ok := LimitFromStored(20).Max()
	assert.True(t, ok)
	assert.Equal(t, int64(20), max)
}

func TestLimitJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		A Limit `json:"a"`
		B Limit `json:"b"`
	}{A: Finite(5), B: Unlimited()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":5,"b":"unlimited"}`, string(raw))

	var parsed struct {
		A Limit `json:"a"`
		B Limit `json:"b"`
		C Limit `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":3,"b":"unlimited","c":-1}`), &parsed))
	assert.Equal(t, Finite(3), parsed.A)
	assert.True(t, parsed.B.IsUnlimited())
	assert.True(t, parsed.C.IsUnlimited())

	assert.Error(t, json.Unmarshal([]byte(`{"a":-2}`), &parsed))
}
