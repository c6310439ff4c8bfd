package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_OrderAndSpan(t *testing.T) {
	periods := Periods()
	require.Len(t, periods, 5)
	for i := 1; i < len(periods); i++ {
		assert.Less(t, periods[i-1], periods[i])
		assert.Less(t, periods[i-1].Span(), periods[i].Span())
	}
	assert.Equal(t, 7*24*time.Hour, Week.Span())
	assert.Equal(t, time.Duration(0), Period(42).Span())
}

func TestParsePeriod(t *testing.T) {
	testCases := []struct {
		in  string
		exp Period
	}{
		{"Second", Second},
		{"sec", Second},
		{" MINUTE ", Minute},
		{"h", Hour},
		{"day", Day},
		{"w", Week},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			p, err := ParsePeriod(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, p)
		})
	}

	_, err := ParsePeriod("fortnight")
	require.Error(t, err)
	assert.True(t, Error.Has(err))
}

func TestPeriod_JSONUsesName(t *testing.T) {
	data, err := json.Marshal(Rate{Period: Hour, Limit: 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"period":"hour","limit":10}`, string(data))

	var r Rate
	require.NoError(t, json.Unmarshal([]byte(`{"period":"Week","limit":3}`), &r))
	assert.Equal(t, Rate{Period: Week, Limit: 3}, r)

	require.Error(t, json.Unmarshal([]byte(`{"period":"year","limit":3}`), &r))
}
