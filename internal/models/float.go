package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// Float is a float64 that survives JSON encoding when it holds NaN or
// an infinity. Undefined statistics are written as null and read back as NaN.
type Float float64

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Floats converts a plain map to its JSON-safe form
func Floats(m map[string]float64) map[string]Float {
	out := make(map[string]Float, len(m))
	for k, v := range m {
		out[k] = Float(v)
	}
	return out
}

func formatAge(age float64) string {
	return strconv.FormatFloat(age, 'f', -1, 64)
}
