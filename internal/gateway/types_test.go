package gateway

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleID_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FlexibleID
		err  bool
	}{
		{name: "number", in: `42`, want: "42"},
		{name: "string", in: `"R1"`, want: "R1"},
		{name: "null", in: `null`, want: ""},
		{name: "float", in: `4.2`, err: true},
		{name: "object", in: `{}`, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id FlexibleID
			err := json.Unmarshal([]byte(tt.in), &id)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestFirstID(t *testing.T) {
	assert.Equal(t, "7", FirstID("", "7"))
	assert.Equal(t, "R1", FirstID("R1", "7"))
	assert.Equal(t, "", FirstID("", ""))
}

func TestParseMoney(t *testing.T) {
	d, err := ParseMoney(json.RawMessage(`10.5`))
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("10.50")))

	d, err = ParseMoney(json.RawMessage(`"5.00"`))
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(5)))

	d, err = ParseMoney(nil)
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseMoney(json.RawMessage(`"abc"`))
	require.Error(t, err)
}

func TestUpstreamError(t *testing.T) {
	err := &UpstreamError{Service: "stock", Status: 409, Message: "sin stock"}
	assert.Equal(t, "stock: 409: sin stock", err.Error())

	wrapped := error(&UpstreamError{Service: "shipping", Message: "breaker open", Err: ErrUnavailable})
	ue, ok := AsUpstreamError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "shipping", ue.Service)
	assert.ErrorIs(t, wrapped, ErrUnavailable)
}
