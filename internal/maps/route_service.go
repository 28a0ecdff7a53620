package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"carpool/internal/types"
)

const metersPerMile = 1609.34

// ErrNoRoute is returned when the directions API yields no drivable route
// between the requested points.
var ErrNoRoute = errors.New("no route found")

// Route is the provider-independent result of a directions lookup.
type Route struct {
	DistanceMiles   float64
	DurationMinutes int
	Polyline        string
	Steps           int
}

// Service handles interactions with the Google Maps API. It performs no
// retries; a failed call is surfaced to the caller as-is.
type Service struct {
	client *maps.Client
}

// NewService creates a new Service with the given API key.
func NewService(apiKey string) (*Service, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Service{client: client}, nil
}

// ComputeRoute requests driving directions from origin to destination
// through the waypoints in order, and collapses all legs into a single
// distance/duration pair.
func (s *Service) ComputeRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      formatPoint(origin),
		Destination: formatPoint(destination),
		Mode:        maps.TravelModeDriving,
		Waypoints:   formatPoints(waypoints),
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, ErrNoRoute
	}

	best := routes[0]
	var meters int
	var seconds float64
	var steps int
	for _, leg := range best.Legs {
		meters += leg.Distance.Meters
		seconds += leg.Duration.Seconds()
		steps += len(leg.Steps)
	}

	return Route{
		DistanceMiles:   float64(meters) / metersPerMile,
		DurationMinutes: int(seconds / 60),
		Polyline:        best.OverviewPolyline.Points,
		Steps:           steps,
	}, nil
}

// ReverseGeocode returns the formatted address closest to the given point,
// or an error when the geocoder has nothing for it.
func (s *Service) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	results, err := s.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return "", errors.New("no address found")
	}
	return results[0].FormattedAddress, nil
}

func formatPoint(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func formatPoints(pts []types.Point) []string {
	if len(pts) == 0 {
		return nil
	}
	out := make([]string, 0, len(pts))
	for _, p := range pts {
		out = append(out, formatPoint(p))
	}
	return out
}
