package types

import "math"

// Dollars is a USD amount. Intermediate arithmetic stays in float64;
// committed amounts are truncated to cents with Trunc.
type Dollars float64

// Trunc drops everything below one cent. Truncation, not nearest-rounding:
// a displayed total must never exceed what is actually collected.
func (d Dollars) Trunc() Dollars {
	return Dollars(math.Trunc(float64(d)*100) / 100)
}
