// Concurrency tests for ride admission control (run with -race).
package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"carpool/internal/types"
)

func TestConcurrentJoinsNeverOvershootCapacity(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	const capacity = 3
	const attempts = 10

	r, err := svc.Create(ctx, createCmd("race-driver", capacity))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		riderID := types.ID(fmt.Sprintf("rider-%d", i))
		wg.Add(1)
		go func(rid types.ID) {
			defer wg.Done()
			_, err := svc.Join(ctx, r.ID, rid)
			errs <- err
		}(riderID)
	}
	wg.Wait()
	close(errs)

	var success, full int
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRideFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != capacity {
		t.Errorf("successes = %d, want exactly %d", success, capacity)
	}
	if full != attempts-capacity {
		t.Errorf("ErrRideFull rejections = %d, want %d", full, attempts-capacity)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentRiders != capacity {
		t.Errorf("current riders = %d, want %d", got.CurrentRiders, capacity)
	}
	if got.RegistrationOpen {
		t.Error("registration still open on a full ride")
	}
	riders, err := svc.Riders(ctx, r.ID)
	if err != nil {
		t.Fatalf("riders: %v", err)
	}
	if len(riders) != capacity {
		t.Errorf("membership rows = %d, want %d", len(riders), capacity)
	}
}

func TestConcurrentJoinVsClose(t *testing.T) {
	svc, _ := setupService(t, &fakeRoutes{route: defaultRoute()})
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("race-driver-2", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Join(ctx, r.ID, "late-rider")
		errs <- err
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.CloseRegistration(ctx, r.ID, "race-driver-2")
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrRegistrationClosed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RegistrationOpen {
		t.Error("registration open after close")
	}
	riders, err := svc.Riders(ctx, r.ID)
	if err != nil {
		t.Fatalf("riders: %v", err)
	}
	// Either ordering is legal, but the count must match the membership rows.
	if got.CurrentRiders != len(riders) {
		t.Errorf("current_riders = %d but %d membership rows", got.CurrentRiders, len(riders))
	}
}
