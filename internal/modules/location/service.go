package location

import (
	"context"
	"time"

	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/types"
)

// Geocoder resolves a coordinate to a formatted address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

type Service struct {
	store     *Store
	geocoder  Geocoder
	tolerance float64
	freshness time.Duration
	log       *zap.Logger
}

func NewService(store *Store, geocoder Geocoder, cfg config.LocationConfig, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		geocoder:  geocoder,
		tolerance: cfg.ToleranceDegrees,
		freshness: time.Duration(cfg.FreshnessDays) * 24 * time.Hour,
		log:       log,
	}
}

// Resolve returns the canonical location for the given coordinates,
// creating one when no existing record lies within the proximity tolerance.
// The box search is an axis-aligned degree approximation; at ~100 m
// tolerance the error against great-circle distance does not matter. Ties
// go to the lowest id so repeated resolves converge on the oldest record.
//
// A geocoder failure never fails the resolve: the caller-supplied address
// is used verbatim instead.
func (s *Service) Resolve(ctx context.Context, address string, p types.Point, formatted string) (*Location, error) {
	if !p.Valid() {
		return nil, ErrInvalidCoordinate
	}

	existing, err := s.store.FindNear(ctx, p, s.tolerance)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if time.Since(existing.LastVerified) > s.freshness {
			s.refresh(ctx, existing)
		}
		return existing, nil
	}

	if formatted == "" && s.geocoder != nil {
		addr, gerr := s.geocoder.ReverseGeocode(ctx, p)
		if gerr != nil {
			s.log.Warn("reverse geocode failed, keeping caller address",
				zap.Float64("lat", p.Lat), zap.Float64("lng", p.Lng), zap.Error(gerr))
		} else {
			formatted = addr
		}
	}
	if formatted == "" {
		formatted = address
	}

	// Persisted immediately so concurrent resolvers converge. Two resolvers
	// racing on nearly identical coordinates may still create two rows;
	// that is a tolerated, bounded inconsistency.
	return s.store.Create(ctx, address, p, formatted)
}

// refresh re-resolves the cached formatted address of a stale record and
// bumps last_verified. Coordinates never change.
func (s *Service) refresh(ctx context.Context, loc *Location) {
	formatted := loc.FormattedAddress
	if s.geocoder != nil {
		addr, err := s.geocoder.ReverseGeocode(ctx, loc.Point)
		if err != nil {
			s.log.Warn("stale address refresh failed",
				zap.Int64("location_id", loc.ID), zap.Error(err))
		} else if addr != "" {
			formatted = addr
		}
	}
	if err := s.store.Touch(ctx, loc.ID, formatted); err != nil {
		s.log.Warn("touch location failed", zap.Int64("location_id", loc.ID), zap.Error(err))
		return
	}
	loc.FormattedAddress = formatted
	loc.LastVerified = time.Now()
}

// Get looks up a location by id.
func (s *Service) Get(ctx context.Context, id int64) (*Location, error) {
	return s.store.Get(ctx, id)
}
