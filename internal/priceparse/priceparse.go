// Package priceparse converts human-entered decimal price strings —
// cmd/fairsim serve's --tick-size/--seed-bid/--seed-ask flags — into
// the engine's scaled int64 price representation without ever passing
// the value through binary floating point, the same discipline the
// pack's decimal-backed order book applies to every price it touches.
package priceparse

import (
	"fmt"

	"github.com/shopspring/decimal"

	"matchcore/internal/domain"
)

var scale = decimal.NewFromInt(domain.PriceScale)

// Parse converts a decimal string like "100.0050" into a scaled
// int64 price. Returns an error if s is not a valid decimal or if
// scaling it would lose sub-tick precision silently (more than four
// fractional digits).
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("priceparse: invalid price %q: %w", s, err)
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("priceparse: price %q must be positive", s)
	}

	scaled := d.Mul(scale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("priceparse: price %q has more precision than the engine's tick scale supports", s)
	}
	return scaled.IntPart(), nil
}

// Format renders a scaled int64 price back to a decimal string using
// the same fixed-point scale, for round-tripping through CLI output
// or HTTP responses.
func Format(p int64) string {
	return decimal.New(p, 0).DivRound(scale, 4).String()
}
