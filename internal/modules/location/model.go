// Package location deduplicates coordinates into canonical location records
// and keeps their reverse-geocoded addresses fresh.
package location

import (
	"errors"
	"time"

	"carpool/internal/types"
)

var (
	ErrNotFound          = errors.New("location not found")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
)

// Location is a canonical place. Identity and coordinates are immutable
// once created; only the cached formatted address is ever refreshed.
type Location struct {
	ID               int64       `json:"id"`
	Address          string      `json:"address"`
	Point            types.Point `json:"point"`
	FormattedAddress string      `json:"formatted_address,omitempty"`
	LastVerified     time.Time   `json:"last_verified"`
}
