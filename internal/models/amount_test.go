package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAmountArithmetic(t *testing.T) {
	stake, err := ParseAmount("1000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "900000000000000000", stake.ReduceByPercent(10).String())
	require.Equal(t, "500000000000000000", stake.Half().String())
	require.True(t, stake.ReduceByPercent(10).Less(stake))
	require.True(t, stake.ReduceByPercent(100).IsZero())
	require.Equal(t, "2000000000000000000", stake.Add(stake).String())

	_, err = ParseAmount("-1")
	require.Error(t, err)
	_, err = ParseAmount("1.5")
	require.Error(t, err)
}

func TestAmountEncoding(t *testing.T) {
	a, _ := ParseAmount("123456789012345678901234567890")
	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `"123456789012345678901234567890"`, string(b))

	var back Amount
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, a.Equal(back))
	require.NoError(t, json.Unmarshal([]byte(`42`), &back))
	require.Equal(t, "42", back.String())

	type holder struct {
		Stake Amount `bson:"stake"`
	}
	raw, err := bson.Marshal(holder{Stake: a})
	require.NoError(t, err)
	var h holder
	require.NoError(t, bson.Unmarshal(raw, &h))
	require.True(t, a.Equal(h.Stake))
}
