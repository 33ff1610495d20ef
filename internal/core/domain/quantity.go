package domain

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity is a stock level or sale quantity as it travels over the wire.
// The remote API serializes decimals as strings, older snapshots may carry
// plain numbers, and corrupt data may carry anything else. Decoding never
// fails: values that are not finite numbers produce an invalid Quantity that
// keeps its raw JSON so a re-encode is lossless.
type Quantity struct {
	value decimal.Decimal
	valid bool
	raw   json.RawMessage
}

// Decoded values outside these bounds are invalid.
const (
	maxExponent = 18
	maxDigits   = 30
)

func withinBounds(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -maxExponent && exp <= maxExponent && d.NumDigits() <= maxDigits
}

func NewQuantity(v decimal.Decimal) Quantity {
	return Quantity{value: v, valid: true}
}

func QuantityFromInt(n int64) Quantity {
	return NewQuantity(decimal.NewFromInt(n))
}

// Decimal returns the numeric value and whether it is usable.
func (q Quantity) Decimal() (decimal.Decimal, bool) {
	return q.value, q.valid
}

func (q Quantity) IsValid() bool {
	return q.valid
}

func (q Quantity) String() string {
	if q.valid {
		return q.value.String()
	}
	if len(q.raw) > 0 {
		return string(q.raw)
	}
	return "null"
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.valid {
		return []byte(q.value.String()), nil
	}
	if len(q.raw) > 0 {
		return q.raw, nil
	}
	return []byte("null"), nil
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*q = Quantity{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	q.raw = append(json.RawMessage(nil), trimmed...)

	text := string(trimmed)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(text)
	if err != nil || !withinBounds(d) {
		return nil
	}
	q.value, q.valid, q.raw = d, true, nil
	return nil
}
