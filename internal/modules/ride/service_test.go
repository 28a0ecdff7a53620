package ride

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/dbtest"
	"carpool/internal/maps"
	"carpool/internal/modules/location"
	"carpool/internal/modules/pricing"
	"carpool/internal/types"
)

// fakeRoutes is a deterministic route provider.
type fakeRoutes struct {
	route maps.Route
	err   error
}

func (f *fakeRoutes) ComputeRoute(_ context.Context, _, _ types.Point, _ []types.Point) (maps.Route, error) {
	return f.route, f.err
}

type fakeGeocoder struct{}

func (fakeGeocoder) ReverseGeocode(_ context.Context, _ types.Point) (string, error) {
	return "Resolved Address", nil
}

func setupService(t *testing.T, routes *fakeRoutes) (*Service, *pricing.Service) {
	t.Helper()
	db := dbtest.New(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	log := zap.NewNop()
	locSvc := location.NewService(location.NewStore(db), fakeGeocoder{}, cfg.Location, log)
	pricer := pricing.NewService(pricing.ParamsFromConfig(cfg.Pricing))
	svc := NewService(NewStore(db, nil), locSvc, routes, pricer, log)
	return svc, pricer
}

func defaultRoute() maps.Route {
	return maps.Route{DistanceMiles: 12.5, DurationMinutes: 45, Polyline: "abc123", Steps: 7}
}

func createCmd(driver types.ID, capacity int) CreateCommand {
	return CreateCommand{
		DriverID:     driver,
		Start:        Endpoint{Address: "origin st", Point: types.Point{Lat: 40.71, Lng: -74.00}},
		End:          Endpoint{Address: "target ave", Point: types.Point{Lat: 40.80, Lng: -73.95}},
		Capacity:     capacity,
		ScheduledFor: time.Now().Add(24 * time.Hour),
	}
}

func TestCreate_PersistsAggregate(t *testing.T) {
	svc, pricer := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	cmd := createCmd("driver-1", 4)
	cmd.Stops = []Endpoint{
		{Address: "stop one", Point: types.Point{Lat: 40.73, Lng: -73.99}},
		{Address: "stop two", Point: types.Point{Lat: 40.76, Lng: -73.97}},
	}
	cmd.Recurring = true
	cmd.Pattern = &RecurringPattern{
		Days:      []int{1, 3, 5},
		StartDate: time.Now(),
		EndDate:   time.Now().Add(60 * 24 * time.Hour),
	}

	r, err := svc.Create(ctx, cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Status != StatusPending || !r.RegistrationOpen || r.CurrentRiders != 0 {
		t.Errorf("new ride not pending/open/empty: %+v", r)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(r.VerificationCode) {
		t.Errorf("verification code %q is not 6 digits", r.VerificationCode)
	}

	want := pricer.Quote(pricing.QuoteInput{
		DistanceMiles:   12.5,
		DurationMinutes: 45,
		Stops:           2,
		Recurring:       true,
	})
	if r.TotalPrice != want.Total {
		t.Errorf("total = %v, want %v", r.TotalPrice, want.Total)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Stops) != 2 {
		t.Fatalf("stops = %d, want 2", len(got.Stops))
	}
	for i, st := range got.Stops {
		if st.Order != i+1 {
			t.Errorf("stop %d has order %d, want %d", i, st.Order, i+1)
		}
	}
	if got.Pattern == nil {
		t.Fatal("recurring pattern not persisted")
	}
	if len(got.Pattern.Days) != 3 || got.Pattern.Days[0] != 1 || got.Pattern.Days[2] != 5 {
		t.Errorf("pattern days = %v, want [1 3 5]", got.Pattern.Days)
	}
}

func TestCreate_RouteFailureLeavesNoPartialState(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{err: errors.New("ZERO_RESULTS")})
	ctx := context.Background()

	_, err := svc.Create(ctx, createCmd("driver-2", 3))
	if !errors.Is(err, ErrRouteUnavailable) {
		t.Fatalf("create error = %v, want ErrRouteUnavailable", err)
	}

	rides, err := svc.List(ctx, ListFilter{DriverID: "driver-2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rides) != 0 {
		t.Errorf("found %d rides after failed creation, want 0", len(rides))
	}
}

func TestCreate_Validation(t *testing.T) {
	// Validation fires before any dependency is touched.
	svc := NewService(nil, nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	cmds := []CreateCommand{
		func() CreateCommand { c := createCmd("", 4); return c }(),
		func() CreateCommand { c := createCmd("d", 0); return c }(),
		func() CreateCommand { c := createCmd("d", maxRiders+1); return c }(),
		func() CreateCommand {
			c := createCmd("d", 4)
			c.Stops = make([]Endpoint, maxStops+1)
			return c
		}(),
		func() CreateCommand { c := createCmd("d", 4); c.ScheduledFor = time.Time{}; return c }(),
		func() CreateCommand { c := createCmd("d", 4); c.Recurring = true; return c }(),
		func() CreateCommand {
			c := createCmd("d", 4)
			c.Pattern = &RecurringPattern{Days: []int{1}}
			return c
		}(),
	}
	for i, cmd := range cmds {
		if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrValidation) {
			t.Errorf("cmd %d: error = %v, want ErrValidation", i, err)
		}
	}
}

func TestJoin_DoubleJoinIncrementsOnce(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-3", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.Join(ctx, r.ID, "rider-a")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if first.CurrentRiders != 1 {
		t.Errorf("current riders = %d, want 1", first.CurrentRiders)
	}

	if _, err := svc.Join(ctx, r.ID, "rider-a"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("second join error = %v, want ErrAlreadyJoined", err)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentRiders != 1 {
		t.Errorf("current riders after duplicate join = %d, want 1", got.CurrentRiders)
	}
}

func TestJoin_CapacityClosesRegistration(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-4", 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Join(ctx, r.ID, "rider-a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	full, err := svc.Join(ctx, r.ID, "rider-b")
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	if full.RegistrationOpen {
		t.Error("registration still open after reaching capacity")
	}

	// A full ride reports full regardless of the flag state.
	if _, err := svc.Join(ctx, r.ID, "rider-c"); !errors.Is(err, ErrRideFull) {
		t.Errorf("join on full ride error = %v, want ErrRideFull", err)
	}
}

func TestJoin_ClosedRegistrationRejects(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-5", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CloseRegistration(ctx, r.ID, "driver-5"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Join(ctx, r.ID, "rider-a"); !errors.Is(err, ErrRegistrationClosed) {
		t.Errorf("join error = %v, want ErrRegistrationClosed", err)
	}
}

func TestJoin_UnknownRide(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	if _, err := svc.Join(context.Background(), "nope", "rider-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("join error = %v, want ErrNotFound", err)
	}
}

func TestCloseRegistration_DriverOnlyAndIdempotent(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-6", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.CloseRegistration(ctx, r.ID, "intruder"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("close by non-driver error = %v, want ErrUnauthorized", err)
	}

	closed, err := svc.CloseRegistration(ctx, r.ID, "driver-6")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.RegistrationOpen {
		t.Error("registration still open after close")
	}

	// Closing again is a no-op, not an error.
	if _, err := svc.CloseRegistration(ctx, r.ID, "driver-6"); err != nil {
		t.Errorf("second close error = %v, want nil", err)
	}
}

func TestLifecycle_HappyPathStampsTimes(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-7", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Accept(ctx, r.ID, "driver-7"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	started, err := svc.Start(ctx, r.ID, "driver-7")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.PickupTime == nil {
		t.Error("pickup time not stamped on start")
	}
	done, err := svc.Complete(ctx, r.ID, "driver-7")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.DropoffTime == nil {
		t.Error("dropoff time not stamped on completion")
	}
	if done.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if done.RegistrationOpen {
		t.Error("terminal ride still has open registration")
	}
}

func TestLifecycle_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-8", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Complete(ctx, r.ID, "driver-8"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete on pending error = %v, want ErrInvalidTransition", err)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status after rejected transition = %s, want pending", got.Status)
	}

	// Applying the same transition twice is rejected the second time.
	if _, err := svc.Accept(ctx, r.ID, "driver-8"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Accept(ctx, r.ID, "driver-8"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second accept error = %v, want ErrInvalidTransition", err)
	}
}

func TestEvents_RecordEveryTransition(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-11", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Accept(ctx, r.ID, "driver-11"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Start(ctx, r.ID, "driver-11"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Complete(ctx, r.ID, "driver-11"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	events, err := svc.Events(ctx, r.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []struct{ from, to Status }{
		{"none", StatusPending},
		{StatusPending, StatusAccepted},
		{StatusAccepted, StatusInProgress},
		{StatusInProgress, StatusCompleted},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		e := events[i]
		if e.FromStatus != w.from || e.ToStatus != w.to {
			t.Errorf("event %d = %s -> %s, want %s -> %s", i, e.FromStatus, e.ToStatus, w.from, w.to)
		}
		if e.ActorID == nil || *e.ActorID != "driver-11" {
			t.Errorf("event %d actor = %v, want driver-11", i, e.ActorID)
		}
	}

	if _, err := svc.Events(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("events for unknown ride error = %v, want ErrNotFound", err)
	}
}

func TestCancel_CascadesRiders(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-9", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Join(ctx, r.ID, "rider-a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.Join(ctx, r.ID, "rider-b"); err != nil {
		t.Fatalf("join: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, r.ID, "driver-9")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("cancelled ride = %+v", cancelled)
	}
	riders, err := svc.Riders(ctx, r.ID)
	if err != nil {
		t.Fatalf("riders: %v", err)
	}
	if len(riders) != 0 {
		t.Errorf("riders after cancel = %d, want 0", len(riders))
	}

	// Cancellation is not allowed once the trip is underway.
	r2, err := svc.Create(ctx, createCmd("driver-9", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Accept(ctx, r2.ID, "driver-9"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Start(ctx, r2.ID, "driver-9"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Cancel(ctx, r2.ID, "driver-9"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel in-progress error = %v, want ErrInvalidTransition", err)
	}
}

func TestSplitPrice_UsesCommittedTotal(t *testing.T) {
	svc, pricer := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("driver-10", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Join(ctx, r.ID, "rider-a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.Join(ctx, r.ID, "rider-b"); err != nil {
		t.Fatalf("join: %v", err)
	}

	split, err := svc.SplitPrice(ctx, r.ID)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := pricer.Split(r.TotalPrice, 2)
	if split != want {
		t.Errorf("split = %+v, want %+v", split, want)
	}

	// The committed total is untouched by splitting.
	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalPrice != r.TotalPrice {
		t.Errorf("total changed: %v -> %v", r.TotalPrice, got.TotalPrice)
	}
}
