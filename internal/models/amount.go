package models

import (
	"encoding/json"
	"fmt"
	"math/big"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Amount is a non-negative value in the smallest currency unit. It is encoded
// as a decimal string in JSON and BSON so no precision is lost.
type Amount struct {
	v big.Int
}

func NewAmount(x int64) Amount {
	var a Amount
	a.v.SetInt64(x)
	return a
}

// ParseAmount parses a base-10 string; negative values are rejected.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if _, ok := a.v.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if a.v.Sign() < 0 {
		return Amount{}, fmt.Errorf("negative amount %q", s)
	}
	return a, nil
}

func AmountFromBig(b *big.Int) Amount {
	var a Amount
	if b != nil {
		a.v.Set(b)
	}
	return a
}

func (a Amount) String() string      { return a.v.String() }
func (a Amount) IsZero() bool        { return a.v.Sign() == 0 }
func (a Amount) Cmp(b Amount) int    { return a.v.Cmp(&b.v) }
func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }
func (a Amount) Less(b Amount) bool  { return a.Cmp(b) < 0 }
func (a Amount) Add(b Amount) Amount { return AmountFromBig(new(big.Int).Add(&a.v, &b.v)) }
func (a Amount) Half() Amount        { return AmountFromBig(new(big.Int).Quo(&a.v, big.NewInt(2))) }

// ReduceByPercent returns a reduced by pct percent, truncating toward zero.
func (a Amount) ReduceByPercent(pct int64) Amount {
	if pct <= 0 {
		return a
	}
	if pct >= 100 {
		return Amount{}
	}
	keep := new(big.Int).Mul(&a.v, big.NewInt(100-pct))
	return AmountFromBig(keep.Quo(keep, big.NewInt(100)))
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.String())
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// tolerate bare numbers from older clients
		s = string(b)
	}
	p, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = p
	return nil
}

func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.String, bsoncore.AppendString(nil, a.v.String()), nil
}

func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t != bsontype.String {
		return fmt.Errorf("amount: unexpected bson type %v", t)
	}
	s, _, ok := bsoncore.ReadString(data)
	if !ok {
		return fmt.Errorf("amount: malformed bson string")
	}
	p, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = p
	return nil
}
