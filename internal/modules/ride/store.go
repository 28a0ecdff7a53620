package ride

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"carpool/internal/types"
)

const cacheTTL = time.Hour

// Store persists rides in PostgreSQL with an optional Redis read cache.
// All admission-control paths lock the ride row (SELECT ... FOR UPDATE) so
// concurrent joins, closes, and cancels on the same ride serialize, while
// different rides never block each other.
type Store struct {
	db    *pgxpool.Pool
	cache *redis.Client
}

func NewStore(db *pgxpool.Pool, cache *redis.Client) *Store {
	return &Store{db: db, cache: cache}
}

const rideColumns = `
	id, driver_id, status, start_location_id, end_location_id,
	capacity, current_riders,
	base_price, stop_fee, time_fee, platform_fee, processor_fee,
	total_price, driver_earnings,
	distance_miles, duration_minutes, polyline,
	scheduled_for, registration_open, is_recurring,
	verification_code, created_at, pickup_time, dropoff_time, cancelled_at`

// Create inserts the ride, its stops, and its optional recurring pattern as
// one transaction. Nothing is visible until every row is in.
func (s *Store) Create(ctx context.Context, r *Ride) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe rollback if not committed

	_, err = tx.Exec(ctx, `
		INSERT INTO rides (
			id, driver_id, status, start_location_id, end_location_id,
			capacity, current_riders,
			base_price, stop_fee, time_fee, platform_fee, processor_fee,
			total_price, driver_earnings,
			distance_miles, duration_minutes, polyline,
			scheduled_for, registration_open, is_recurring,
			verification_code, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11, $12,
			$13, $14,
			$15, $16, $17,
			$18, $19, $20,
			$21, $22
		)`,
		string(r.ID), string(r.DriverID), string(r.Status),
		r.StartLocationID, r.EndLocationID,
		r.Capacity, r.CurrentRiders,
		float64(r.BasePrice), float64(r.StopFee), float64(r.TimeFee),
		float64(r.PlatformFee), float64(r.ProcessorFee),
		float64(r.TotalPrice), float64(r.DriverEarnings),
		r.DistanceMiles, r.DurationMinutes, r.Polyline,
		r.ScheduledFor, r.RegistrationOpen, r.IsRecurring,
		r.VerificationCode, r.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, stop := range r.Stops {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ride_stops (ride_id, location_id, stop_order)
			VALUES ($1, $2, $3)`,
			string(r.ID), stop.LocationID, stop.Order,
		); err != nil {
			return err
		}
	}

	if r.Pattern != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO recurring_patterns (ride_id, days_of_week, start_date, end_date)
			VALUES ($1, $2, $3, $4)`,
			string(r.ID), daysToString(r.Pattern.Days), r.Pattern.StartDate, r.Pattern.EndDate,
		); err != nil {
			return err
		}
	}

	if err := appendEvent(ctx, tx, r.ID, "none", StatusPending, &r.DriverID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Join runs the admission check-and-increment as one critical section under
// a row lock. Capacity is checked before the registration flag so a full
// ride always reports full.
func (s *Store) Join(ctx context.Context, rideID, riderID types.ID) (*Ride, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := lockRide(ctx, tx, rideID)
	if err != nil {
		return nil, err
	}
	if r.CurrentRiders >= r.Capacity {
		return nil, ErrRideFull
	}
	if !r.RegistrationOpen {
		return nil, ErrRegistrationClosed
	}

	var joined bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ride_riders WHERE ride_id = $1 AND rider_id = $2
		)`, string(rideID), string(riderID),
	).Scan(&joined); err != nil {
		return nil, err
	}
	if joined {
		return nil, ErrAlreadyJoined
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ride_riders (ride_id, rider_id, payment_status, joined_at)
		VALUES ($1, $2, FALSE, NOW())`,
		string(rideID), string(riderID),
	); err != nil {
		return nil, err
	}

	// Reaching capacity closes registration in the same atomic unit.
	newCount := r.CurrentRiders + 1
	stillOpen := newCount < r.Capacity
	if _, err := tx.Exec(ctx, `
		UPDATE rides SET current_riders = $2, registration_open = $3
		WHERE id = $1`,
		string(rideID), newCount, stillOpen,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.reload(ctx, rideID)
}

// CloseRegistration is driver-only and idempotent.
func (s *Store) CloseRegistration(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := lockRide(ctx, tx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != driverID {
		return nil, ErrUnauthorized
	}
	if !r.RegistrationOpen {
		// Already closed; nothing to do.
		return s.Get(ctx, rideID)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE rides SET registration_open = FALSE WHERE id = $1`,
		string(rideID),
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.reload(ctx, rideID)
}

// Transition applies one state-machine edge under the row lock, stamping
// pickup/dropoff/cancellation times. Cancelling cascades the rider
// memberships away and zeroes the rider count. Terminal states close
// registration.
func (s *Store) Transition(ctx context.Context, rideID, driverID types.ID, to Status) (*Ride, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := lockRide(ctx, tx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != driverID {
		return nil, ErrUnauthorized
	}
	if !CanTransition(r.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $2,
		    registration_open = registration_open AND NOT $3,
		    pickup_time  = CASE WHEN $2 = 'in_progress' THEN NOW() ELSE pickup_time END,
		    dropoff_time = CASE WHEN $2 = 'completed'   THEN NOW() ELSE dropoff_time END,
		    cancelled_at = CASE WHEN $2 = 'cancelled'   THEN NOW() ELSE cancelled_at END
		WHERE id = $1`,
		string(rideID), string(to), to.Terminal(),
	); err != nil {
		return nil, err
	}

	if to == StatusCancelled {
		if _, err := tx.Exec(ctx,
			`DELETE FROM ride_riders WHERE ride_id = $1`, string(rideID)); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE rides SET current_riders = 0 WHERE id = $1`, string(rideID)); err != nil {
			return nil, err
		}
	}

	if err := appendEvent(ctx, tx, rideID, r.Status, to, &driverID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.reload(ctx, rideID)
}

// Get loads the full aggregate, trying the cache first.
func (s *Store) Get(ctx context.Context, rideID types.ID) (*Ride, error) {
	if cached := s.cacheGet(ctx, rideID); cached != nil {
		return cached, nil
	}
	r, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.cachePopulate(ctx, r)
	return r, nil
}

// reload bypasses the cache and overwrites the entry with the current row.
// Mutators call it after commit, so their write always lands over any
// read-through populate that raced with the transaction.
func (s *Store) reload(ctx context.Context, rideID types.ID) (*Ride, error) {
	r, err := s.load(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.cacheReplace(ctx, r)
	return r, nil
}

func (s *Store) load(ctx context.Context, rideID types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(rideID))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadStops(ctx, r); err != nil {
		return nil, err
	}
	if r.IsRecurring {
		if err := s.loadPattern(ctx, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (s *Store) loadStops(ctx context.Context, r *Ride) error {
	rows, err := s.db.Query(ctx, `
		SELECT location_id, stop_order FROM ride_stops
		WHERE ride_id = $1 ORDER BY stop_order`, string(r.ID))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var st Stop
		if err := rows.Scan(&st.LocationID, &st.Order); err != nil {
			return err
		}
		r.Stops = append(r.Stops, st)
	}
	return rows.Err()
}

func (s *Store) loadPattern(ctx context.Context, r *Ride) error {
	var days string
	var p RecurringPattern
	err := s.db.QueryRow(ctx, `
		SELECT days_of_week, start_date, end_date FROM recurring_patterns
		WHERE ride_id = $1`, string(r.ID),
	).Scan(&days, &p.StartDate, &p.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	p.Days = parseDays(days)
	r.Pattern = &p
	return nil
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides`
	var conds []string
	var args []any
	if f.DriverID != "" {
		args = append(args, string(f.DriverID))
		conds = append(conds, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if f.UpcomingOnly {
		conds = append(conds, "scheduled_for >= NOW()")
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY scheduled_for ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Riders(ctx context.Context, rideID types.ID) ([]Rider, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ride_id, rider_id, payment_status, joined_at
		FROM ride_riders WHERE ride_id = $1 ORDER BY joined_at`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rider
	for rows.Next() {
		var m Rider
		if err := rows.Scan(&m.RideID, &m.RiderID, &m.Paid, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Events returns the transition log for a ride, oldest first.
func (s *Store) Events(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_id, created_at
		FROM ride_events WHERE ride_id = $1 ORDER BY id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actor sql.NullString
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			id := types.ID(actor.String)
			e.ActorID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// lockRide reads the ride row FOR UPDATE inside tx. Different rides take
// different locks; callers on the same ride serialize here.
func lockRide(ctx context.Context, tx pgx.Tx, rideID types.ID) (*Ride, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, string(rideID))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func appendEvent(ctx context.Context, tx pgx.Tx, rideID types.ID, from, to Status, actor *types.ID) error {
	var actorID *string
	if actor != nil {
		v := string(*actor)
		actorID = &v
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ride_events (ride_id, from_status, to_status, actor_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		string(rideID), string(from), string(to), actorID,
	)
	return err
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var pickup, dropoff, cancelled sql.NullTime
	err := row.Scan(
		&r.ID, &r.DriverID, &r.Status, &r.StartLocationID, &r.EndLocationID,
		&r.Capacity, &r.CurrentRiders,
		&r.BasePrice, &r.StopFee, &r.TimeFee, &r.PlatformFee, &r.ProcessorFee,
		&r.TotalPrice, &r.DriverEarnings,
		&r.DistanceMiles, &r.DurationMinutes, &r.Polyline,
		&r.ScheduledFor, &r.RegistrationOpen, &r.IsRecurring,
		&r.VerificationCode, &r.CreatedAt, &pickup, &dropoff, &cancelled,
	)
	if err != nil {
		return nil, err
	}
	r.PickupTime = toTimePtr(pickup)
	r.DropoffTime = toTimePtr(dropoff)
	r.CancelledAt = toTimePtr(cancelled)
	return &r, nil
}

func (s *Store) cacheKey(rideID types.ID) string {
	return "ride:" + string(rideID)
}

func (s *Store) cacheGet(ctx context.Context, rideID types.ID) *Ride {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(rideID)).Bytes()
	if err != nil {
		return nil // miss or redis down; fall through to Postgres
	}
	var r Ride
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil
	}
	return &r
}

// cachePopulate fills a missing entry. SETNX, not SET: a read that started
// before a concurrent mutation committed must not clobber the fresh copy
// the mutator wrote.
func (s *Store) cachePopulate(ctx context.Context, r *Ride) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	s.cache.SetNX(ctx, s.cacheKey(r.ID), raw, cacheTTL)
}

// cacheReplace unconditionally overwrites the entry with post-commit state.
func (s *Store) cacheReplace(ctx context.Context, r *Ride) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	s.cache.Set(ctx, s.cacheKey(r.ID), raw, cacheTTL)
}

func daysToString(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func parseDays(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
