// Package ride owns the ride aggregate: its state machine, capacity
// invariants, and admission control.
package ride

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"carpool/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// AllowedTransitions represents the ride state flow (diagram) as code.
// COMPLETED and CANCELLED are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

const (
	maxStops  = 5
	maxRiders = 8
)

var (
	ErrNotFound           = errors.New("ride not found")
	ErrValidation         = errors.New("invalid ride request")
	ErrRegistrationClosed = errors.New("ride registration is closed")
	ErrRideFull           = errors.New("ride is full")
	ErrAlreadyJoined      = errors.New("rider already joined this ride")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrUnauthorized       = errors.New("caller is not the ride driver")
	ErrRouteUnavailable   = errors.New("route unavailable")
)

// Ride is the aggregate root. The price columns are committed at creation
// and never recomputed; splits are derived on demand.
type Ride struct {
	ID               types.ID          `json:"id"`
	DriverID         types.ID          `json:"driver_id"`
	Status           Status            `json:"status"`
	StartLocationID  int64             `json:"start_location_id"`
	EndLocationID    int64             `json:"end_location_id"`
	Stops            []Stop            `json:"stops,omitempty"`
	Capacity         int               `json:"capacity"`
	CurrentRiders    int               `json:"current_riders"`
	BasePrice        types.Dollars     `json:"base_price"`
	StopFee          types.Dollars     `json:"stop_fee"`
	TimeFee          types.Dollars     `json:"time_fee"`
	PlatformFee      types.Dollars     `json:"platform_fee"`
	ProcessorFee     types.Dollars     `json:"processor_fee"`
	TotalPrice       types.Dollars     `json:"total_price"`
	DriverEarnings   types.Dollars     `json:"driver_earnings"`
	DistanceMiles    float64           `json:"distance_miles"`
	DurationMinutes  int               `json:"duration_minutes"`
	Polyline         string            `json:"polyline,omitempty"`
	ScheduledFor     time.Time         `json:"scheduled_for"`
	RegistrationOpen bool              `json:"registration_open"`
	IsRecurring      bool              `json:"is_recurring"`
	Pattern          *RecurringPattern `json:"recurring_pattern,omitempty"`
	VerificationCode string            `json:"verification_code"`
	CreatedAt        time.Time         `json:"created_at"`
	PickupTime       *time.Time        `json:"pickup_time,omitempty"`
	DropoffTime      *time.Time        `json:"dropoff_time,omitempty"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
}

// Stop is an ordered intermediate stop, created atomically with its ride
// and immutable afterwards. Order is 1-based and contiguous.
type Stop struct {
	LocationID int64 `json:"location_id"`
	Order      int   `json:"order"`
}

// RecurringPattern belongs to exactly one recurring ride.
type RecurringPattern struct {
	Days      []int     `json:"days_of_week"` // ISO weekdays, subset of 1..7
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func (p *RecurringPattern) validate() error {
	if len(p.Days) == 0 {
		return fmt.Errorf("%w: recurring pattern needs at least one weekday", ErrValidation)
	}
	seen := map[int]bool{}
	for _, d := range p.Days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: weekday %d out of range 1..7", ErrValidation, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate weekday %d", ErrValidation, d)
		}
		seen[d] = true
	}
	if p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("%w: pattern end date before start date", ErrValidation)
	}
	sort.Ints(p.Days)
	return nil
}

// Rider records one rider's membership in a ride. Deleted only when the
// ride is cancelled.
type Rider struct {
	RideID   types.ID  `json:"ride_id"`
	RiderID  types.ID  `json:"rider_id"`
	Paid     bool      `json:"paid"`
	JoinedAt time.Time `json:"joined_at"`
}

// Event is one entry of the ride transition log. The first event of every
// ride records creation with a "none" from-status.
type Event struct {
	ID         int64     `json:"id"`
	RideID     types.ID  `json:"ride_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
