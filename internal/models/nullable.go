// internal/models/nullable.go
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// NullFloat is a rate or score that may be undefined. Undefined values
// come from empty denominators or zero variance and serialize as null.
type NullFloat struct {
	Value float64
	Valid bool
}

// Some returns a defined value unless v is NaN or infinite.
func Some(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return NullFloat{Value: v, Valid: true}
}

func Null() NullFloat { return NullFloat{} }

// Ratio is num/den, undefined when den is zero.
func Ratio(num, den int) NullFloat {
	if den == 0 {
		return NullFloat{}
	}
	return Some(float64(num) / float64(den))
}

// Float returns NaN for undefined values.
func (n NullFloat) Float() float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Value
}

func (n NullFloat) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}
