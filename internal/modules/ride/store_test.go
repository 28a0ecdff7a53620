// Cache-backed store tests; need both CARPOOL_TEST_DSN and
// CARPOOL_TEST_REDIS_ADDR.
package ride

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/dbtest"
	"carpool/internal/modules/location"
	"carpool/internal/modules/pricing"
)

func setupCachedService(t *testing.T) (*Service, *Store) {
	t.Helper()
	db := dbtest.New(t)
	cache := dbtest.NewRedis(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	log := zap.NewNop()
	locSvc := location.NewService(location.NewStore(db), fakeGeocoder{}, cfg.Location, log)
	pricer := pricing.NewService(pricing.ParamsFromConfig(cfg.Pricing))
	store := NewStore(db, cache)
	svc := NewService(store, locSvc, &fakeRoutes{route: defaultRoute()}, pricer, log)
	return svc, store
}

func TestCachedGet_ReflectsMutations(t *testing.T) {
	svc, _ := setupCachedService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("cache-driver", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Warm the cache, then mutate.
	if _, err := svc.Get(ctx, r.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.Join(ctx, r.ID, "rider-a"); err != nil {
		t.Fatalf("join: %v", err)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get after join: %v", err)
	}
	if got.CurrentRiders != 1 {
		t.Errorf("cached riders = %d, want 1", got.CurrentRiders)
	}
}

func TestCachedGet_SlowReaderCannotClobberMutation(t *testing.T) {
	svc, store := setupCachedService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, createCmd("cache-driver-2", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A reader picks up the pre-join state.
	stale, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.Join(ctx, r.ID, "rider-a"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// The slow reader now tries to populate the cache with its stale copy.
	// The entry already holds the post-join state, so this must be a no-op.
	store.cachePopulate(ctx, stale)

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get after stale populate: %v", err)
	}
	if got.CurrentRiders != 1 {
		t.Errorf("stale populate clobbered the mutation: riders = %d, want 1", got.CurrentRiders)
	}
}
