package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AmountDecimals matches the on-chain UFix64 precision.
const AmountDecimals = 8

const amountScale int64 = 100_000_000

// Amount is a fixed point token quantity stored as units of 1e-8.
type Amount int64

// ParseAmount parses a plain decimal such as "12", "0.5" or "10.00000001".
// Exponents, signs other than a leading '-', and more than eight fractional
// digits are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, fmt.Errorf("%w: amount %q", ErrInvalidInput, s)
	}
	if len(frac) > AmountDecimals {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimals", ErrInvalidInput, s, AmountDecimals)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("%w: amount %q", ErrInvalidInput, s)
	}

	var w int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil || v > math.MaxInt64/amountScale-1 {
			return 0, fmt.Errorf("%w: amount %q out of range", ErrInvalidInput, s)
		}
		w = v
	}
	var f int64
	if frac != "" {
		padded := frac + strings.Repeat("0", AmountDecimals-len(frac))
		v, err := strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: amount %q", ErrInvalidInput, s)
		}
		f = v
	}
	units := w*amountScale + f
	if neg {
		units = -units
	}
	return Amount(units), nil
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the amount without trailing fractional zeros.
func (a Amount) String() string {
	units := int64(a)
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	whole := units / amountScale
	frac := units % amountScale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	fs := fmt.Sprintf("%08d", frac)
	return sign + strconv.FormatInt(whole, 10) + "." + strings.TrimRight(fs, "0")
}

// UFix64 renders the amount with exactly eight decimals, the form Cadence
// arguments expect.
func (a Amount) UFix64() string {
	units := int64(a)
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	return fmt.Sprintf("%s%d.%08d", sign, units/amountScale, units%amountScale)
}

func (a Amount) IsPositive() bool { return a > 0 }

// Float64 is for display and ratios only.
func (a Amount) Float64() float64 { return float64(a) / float64(amountScale) }

// MarshalJSON emits a JSON number so clients can do arithmetic directly.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts either a number or a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Percent returns a as a percentage of total, capped at 100.
func (a Amount) Percent(total Amount) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(a) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return math.Round(p*100) / 100
}

// PercentOf returns pct percent of a, truncated to whole units. pct is
// expected in [0, 100]; the split keeps the product within int64.
func (a Amount) PercentOf(pct int) Amount {
	p := int64(pct)
	return Amount(int64(a)/100*p + int64(a)%100*p/100)
}
