// Package pricing turns route geometry into an itemized cost breakdown and
// splits committed totals among riders. It is a pure function of its inputs:
// no I/O, no clock, no shared state.
package pricing

import (
	"errors"

	"carpool/internal/config"
	"carpool/internal/types"
)

// ErrZeroDistance is returned by PerMile on a breakdown priced over a
// zero-mile route; callers must guard the division themselves.
var ErrZeroDistance = errors.New("distance is zero")

// Params holds the cost-model constants. Values should track market
// conditions; defaults come from config.
type Params struct {
	GasPricePerGallon   float64
	AverageMPG          float64
	InsurancePerMile    float64
	MaintenancePerMile  float64
	DepreciationPerMile float64
	DriverMargin        float64
	PlatformMargin      float64
	MinPerMile          float64
	MaxPerMile          float64
	StopFee             float64
	FreeMinutes         int
	PerMinuteOverage    float64
	RecurringDiscount   float64
	ProcessorPct        float64
	ProcessorFixed      float64
	DriverSplitShare    float64
}

// ParamsFromConfig copies the pricing section of the runtime config.
func ParamsFromConfig(c config.PricingConfig) Params {
	return Params{
		GasPricePerGallon:   c.GasPricePerGallon,
		AverageMPG:          c.AverageMPG,
		InsurancePerMile:    c.InsurancePerMile,
		MaintenancePerMile:  c.MaintenancePerMile,
		DepreciationPerMile: c.DepreciationPerMile,
		DriverMargin:        c.DriverMargin,
		PlatformMargin:      c.PlatformMargin,
		MinPerMile:          c.MinPerMile,
		MaxPerMile:          c.MaxPerMile,
		StopFee:             c.StopFee,
		FreeMinutes:         c.FreeMinutes,
		PerMinuteOverage:    c.PerMinuteOverage,
		RecurringDiscount:   c.RecurringDiscount,
		ProcessorPct:        c.ProcessorPct,
		ProcessorFixed:      c.ProcessorFixed,
		DriverSplitShare:    c.DriverSplitShare,
	}
}

// QuoteInput describes one ride to price.
type QuoteInput struct {
	DistanceMiles   float64
	DurationMinutes int
	Stops           int
	Recurring       bool
	// GasPrice overrides the configured gas price when > 0, for callers
	// that inject a live quote.
	GasPrice float64
}

// Breakdown is the itemized result of a quote. Total is the committed,
// truncated amount; the line items keep full precision.
type Breakdown struct {
	BasePrice      types.Dollars `json:"base_price"`
	StopFee        types.Dollars `json:"stop_fee"`
	TimeFee        types.Dollars `json:"time_fee"`
	PlatformFee    types.Dollars `json:"platform_fee"`
	ProcessorFee   types.Dollars `json:"processor_fee"`
	Total          types.Dollars `json:"total_price"`
	DriverEarnings types.Dollars `json:"driver_earnings"`
	PerMileRate    types.Dollars `json:"per_mile_rate"`
	DistanceMiles  float64       `json:"distance_miles"`
}

// PerMile is the effective collected price per mile.
func (b Breakdown) PerMile() (types.Dollars, error) {
	if b.DistanceMiles == 0 {
		return 0, ErrZeroDistance
	}
	return b.Total / types.Dollars(b.DistanceMiles), nil
}

// SplitResult is the outcome of dividing a committed total among riders.
type SplitResult struct {
	PerRider           types.Dollars `json:"price_per_rider"`
	DriverContribution types.Dollars `json:"driver_contribution"`
	Riders             int           `json:"riders"`
}
