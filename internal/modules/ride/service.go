package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"carpool/internal/maps"
	"carpool/internal/modules/location"
	"carpool/internal/modules/pricing"
	"carpool/internal/types"
)

// RouteProvider computes driving geometry between resolved endpoints. It is
// injected so tests can substitute a deterministic fake.
type RouteProvider interface {
	ComputeRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (maps.Route, error)
}

// LocationResolver canonicalizes raw coordinates into location records.
type LocationResolver interface {
	Resolve(ctx context.Context, address string, p types.Point, formatted string) (*location.Location, error)
}

// Pricer is the pure pricing pipeline.
type Pricer interface {
	Quote(in pricing.QuoteInput) pricing.Breakdown
	Split(total types.Dollars, riders int) pricing.SplitResult
}

type Service struct {
	store     *Store
	locations LocationResolver
	routes    RouteProvider
	pricer    Pricer
	log       *zap.Logger
}

func NewService(store *Store, locations LocationResolver, routes RouteProvider, pricer Pricer, log *zap.Logger) *Service {
	return &Service{store: store, locations: locations, routes: routes, pricer: pricer, log: log}
}

// Endpoint is a caller-supplied place: a display address plus coordinates,
// optionally with an already-formatted address.
type Endpoint struct {
	Address   string
	Point     types.Point
	Formatted string
}

type CreateCommand struct {
	DriverID     types.ID
	Start        Endpoint
	End          Endpoint
	Stops        []Endpoint
	Capacity     int
	ScheduledFor time.Time
	Recurring    bool
	Pattern      *RecurringPattern
	// GasPrice optionally overrides the configured gas price for this quote.
	GasPrice float64
}

func (cmd *CreateCommand) validate() error {
	if cmd.DriverID == "" {
		return fmt.Errorf("%w: driver id required", ErrValidation)
	}
	if cmd.Capacity < 1 || cmd.Capacity > maxRiders {
		return fmt.Errorf("%w: capacity must be between 1 and %d", ErrValidation, maxRiders)
	}
	if len(cmd.Stops) > maxStops {
		return fmt.Errorf("%w: at most %d stops", ErrValidation, maxStops)
	}
	if cmd.ScheduledFor.IsZero() {
		return fmt.Errorf("%w: scheduled time required", ErrValidation)
	}
	if cmd.Recurring {
		if cmd.Pattern == nil {
			return fmt.Errorf("%w: recurring ride needs a pattern", ErrValidation)
		}
		if err := cmd.Pattern.validate(); err != nil {
			return err
		}
	} else if cmd.Pattern != nil {
		return fmt.Errorf("%w: pattern given for a non-recurring ride", ErrValidation)
	}
	return nil
}

// Create resolves every endpoint, computes one route start→stops→end,
// prices it, and persists the ride with its stops and optional pattern as a
// single transaction. A route failure aborts the whole operation; nothing
// is persisted.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	start, err := s.locations.Resolve(ctx, cmd.Start.Address, cmd.Start.Point, cmd.Start.Formatted)
	if err != nil {
		return nil, fmt.Errorf("resolve start: %w", err)
	}
	end, err := s.locations.Resolve(ctx, cmd.End.Address, cmd.End.Point, cmd.End.Formatted)
	if err != nil {
		return nil, fmt.Errorf("resolve end: %w", err)
	}

	stops := make([]Stop, 0, len(cmd.Stops))
	waypoints := make([]types.Point, 0, len(cmd.Stops))
	for i, ep := range cmd.Stops {
		loc, err := s.locations.Resolve(ctx, ep.Address, ep.Point, ep.Formatted)
		if err != nil {
			return nil, fmt.Errorf("resolve stop %d: %w", i+1, err)
		}
		stops = append(stops, Stop{LocationID: loc.ID, Order: i + 1})
		waypoints = append(waypoints, loc.Point)
	}

	route, err := s.routes.ComputeRoute(ctx, start.Point, end.Point, waypoints)
	if err != nil {
		s.log.Warn("route computation failed",
			zap.String("driver_id", string(cmd.DriverID)), zap.Error(err))
		return nil, errors.Join(ErrRouteUnavailable, err)
	}

	quote := s.pricer.Quote(pricing.QuoteInput{
		DistanceMiles:   route.DistanceMiles,
		DurationMinutes: route.DurationMinutes,
		Stops:           len(stops),
		Recurring:       cmd.Recurring,
		GasPrice:        cmd.GasPrice,
	})

	r := &Ride{
		ID:               newID(),
		DriverID:         cmd.DriverID,
		Status:           StatusPending,
		StartLocationID:  start.ID,
		EndLocationID:    end.ID,
		Stops:            stops,
		Capacity:         cmd.Capacity,
		CurrentRiders:    0,
		BasePrice:        quote.BasePrice,
		StopFee:          quote.StopFee,
		TimeFee:          quote.TimeFee,
		PlatformFee:      quote.PlatformFee,
		ProcessorFee:     quote.ProcessorFee,
		TotalPrice:       quote.Total,
		DriverEarnings:   quote.DriverEarnings,
		DistanceMiles:    route.DistanceMiles,
		DurationMinutes:  route.DurationMinutes,
		Polyline:         route.Polyline,
		ScheduledFor:     cmd.ScheduledFor,
		RegistrationOpen: true,
		IsRecurring:      cmd.Recurring,
		Pattern:          cmd.Pattern,
		VerificationCode: newVerificationCode(),
		CreatedAt:        time.Now(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("persist ride: %w", err)
	}

	s.log.Info("ride created",
		zap.String("ride_id", string(r.ID)),
		zap.String("driver_id", string(r.DriverID)),
		zap.Float64("distance_miles", r.DistanceMiles),
		zap.Float64("total_price", float64(r.TotalPrice)))
	return r, nil
}

// Join admits one rider. The read-check-increment sequence runs as a single
// atomic unit in the store; see Store.Join.
func (s *Service) Join(ctx context.Context, rideID, riderID types.ID) (*Ride, error) {
	if rideID == "" || riderID == "" {
		return nil, fmt.Errorf("%w: ride id and rider id required", ErrValidation)
	}
	r, err := s.store.Join(ctx, rideID, riderID)
	if err != nil {
		return nil, err
	}
	s.log.Info("rider joined",
		zap.String("ride_id", string(rideID)),
		zap.String("rider_id", string(riderID)),
		zap.Int("current_riders", r.CurrentRiders),
		zap.Bool("registration_open", r.RegistrationOpen))
	return r, nil
}

// CloseRegistration closes the join window regardless of occupancy.
// Driver-only, and idempotent: closing an already-closed ride is a no-op.
func (s *Service) CloseRegistration(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	if rideID == "" || driverID == "" {
		return nil, fmt.Errorf("%w: ride id and driver id required", ErrValidation)
	}
	return s.store.CloseRegistration(ctx, rideID, driverID)
}

func (s *Service) Accept(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	return s.transition(ctx, rideID, driverID, StatusAccepted)
}

func (s *Service) Start(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	return s.transition(ctx, rideID, driverID, StatusInProgress)
}

func (s *Service) Complete(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	return s.transition(ctx, rideID, driverID, StatusCompleted)
}

// Cancel tears a ride down from PENDING or ACCEPTED and cascades the rider
// memberships away.
func (s *Service) Cancel(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	return s.transition(ctx, rideID, driverID, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, rideID, driverID types.ID, to Status) (*Ride, error) {
	if rideID == "" || driverID == "" {
		return nil, fmt.Errorf("%w: ride id and driver id required", ErrValidation)
	}
	r, err := s.store.Transition(ctx, rideID, driverID, to)
	if err != nil {
		return nil, err
	}
	s.log.Info("ride transitioned",
		zap.String("ride_id", string(rideID)),
		zap.String("status", string(to)))
	return r, nil
}

func (s *Service) Get(ctx context.Context, rideID types.ID) (*Ride, error) {
	return s.store.Get(ctx, rideID)
}

// ListFilter narrows List results.
type ListFilter struct {
	DriverID     types.ID
	UpcomingOnly bool
	Limit        int
	Offset       int
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Ride, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.List(ctx, f)
}

// Riders returns a ride's current memberships.
func (s *Service) Riders(ctx context.Context, rideID types.ID) ([]Rider, error) {
	if _, err := s.store.Get(ctx, rideID); err != nil {
		return nil, err
	}
	return s.store.Riders(ctx, rideID)
}

// Events returns a ride's transition log, oldest first. The creation entry
// always comes first.
func (s *Service) Events(ctx context.Context, rideID types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, rideID); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, rideID)
}

// SplitPrice derives the per-rider share from the committed total and the
// current rider count. It never writes anything back.
func (s *Service) SplitPrice(ctx context.Context, rideID types.ID) (pricing.SplitResult, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return pricing.SplitResult{}, err
	}
	return s.pricer.Split(r.TotalPrice, r.CurrentRiders), nil
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}

// newVerificationCode returns a 6-digit code the driver and riders exchange
// at pickup.
func newVerificationCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
