package analytics

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/aclements/go-moremath/stats"
)

// unavailableJSON is how a missing comparison is rendered.
const unavailableJSON = `"-"`

// Value is a derived number that may have no defined value, for example a
// percentage against a zero reference.
type Value struct {
	Float float64
	Valid bool
}

// Number wraps f as a valid Value. NaN and infinities are not valid.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}

	return Value{Float: f, Valid: true}
}

// Unavailable is the Value of a comparison that could not be computed.
var Unavailable = Value{}

// String formats the value with two decimals, or "-" when unavailable.
func (v Value) String() string {
	if !v.Valid {
		return "-"
	}

	return strconv.FormatFloat(v.Float, 'f', 2, 64)
}

// MarshalJSON encodes a valid value as a number and an unavailable one as
// the string "-".
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte(unavailableJSON), nil
	}

	return json.Marshal(v.Float)
}

// UnmarshalJSON accepts a number or the string "-".
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == unavailableJSON || string(data) == "null" {
		*v = Unavailable

		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	*v = Number(f)

	return nil
}

// percentChange returns (current - reference) / reference * 100.
func percentChange(current, reference float64) Value {
	if reference == 0 {
		return Unavailable
	}

	return Number((current - reference) * 100 / reference)
}

// ratioTotal averages the collected current/reference ratios and converts
// the mean back to a percentage. Averaging ratios rather than percentages
// is what the overview totals are defined as.
func ratioTotal(ratios []float64) Value {
	if len(ratios) == 0 {
		return Unavailable
	}

	return Number((stats.Mean(ratios) - 1) * 100)
}
