package pricing

import (
	"math"

	"carpool/internal/types"
)

// Service computes quotes and rider splits from a fixed parameter set.
type Service struct {
	params Params
}

func NewService(params Params) *Service {
	return &Service{params: params}
}

// perMileRate derives the operating cost per mile, applies the driver and
// platform margins, clamps the result into the configured band, and commits
// it to cents. The rounded rate is what multiplies distance, so the base
// price is always an exact cent multiple of the miles.
func (s *Service) perMileRate(gasPrice float64) float64 {
	p := s.params
	if gasPrice <= 0 {
		gasPrice = p.GasPricePerGallon
	}
	cost := gasPrice/p.AverageMPG +
		p.InsurancePerMile +
		p.MaintenancePerMile +
		p.DepreciationPerMile
	rate := cost * (1 + p.DriverMargin) * (1 + p.PlatformMargin)
	if rate < p.MinPerMile {
		rate = p.MinPerMile
	}
	if rate > p.MaxPerMile {
		rate = p.MaxPerMile
	}
	return math.Round(rate*100) / 100
}

// Quote runs the full pipeline: base price from the clamped per-mile rate,
// stop and overtime fees, recurring discount, then processor pass-through.
// The platform fee is carved out of the subtotal, not added on top; the
// rider-facing total is subtotal plus processor fee, truncated to cents.
func (s *Service) Quote(in QuoteInput) Breakdown {
	p := s.params
	rate := s.perMileRate(in.GasPrice)

	basePrice := in.DistanceMiles * rate
	stopFee := float64(in.Stops) * p.StopFee

	overMinutes := in.DurationMinutes - p.FreeMinutes
	if overMinutes < 0 {
		overMinutes = 0
	}
	timeFee := float64(overMinutes) * p.PerMinuteOverage

	subtotal := basePrice + stopFee + timeFee
	if in.Recurring {
		subtotal *= 1 - p.RecurringDiscount
	}

	processorFee := subtotal*p.ProcessorPct + p.ProcessorFixed
	platformFee := subtotal * p.PlatformMargin

	return Breakdown{
		BasePrice:      types.Dollars(basePrice),
		StopFee:        types.Dollars(stopFee),
		TimeFee:        types.Dollars(timeFee),
		PlatformFee:    types.Dollars(platformFee),
		ProcessorFee:   types.Dollars(processorFee),
		Total:          types.Dollars(subtotal + processorFee).Trunc(),
		DriverEarnings: types.Dollars(subtotal - platformFee),
		PerMileRate:    types.Dollars(rate),
		DistanceMiles:  in.DistanceMiles,
	}
}

// Split divides a committed total among riders. The driver absorbs a fixed
// share; the remainder is divided evenly and truncated to cents. A
// non-positive rider count degenerates to the full total, unsplit.
func (s *Service) Split(total types.Dollars, riders int) SplitResult {
	if riders <= 0 {
		return SplitResult{PerRider: total, Riders: riders}
	}
	contribution := total * types.Dollars(s.params.DriverSplitShare)
	perRider := ((total - contribution) / types.Dollars(riders)).Trunc()
	return SplitResult{
		PerRider:           perRider,
		DriverContribution: contribution,
		Riders:             riders,
	}
}
