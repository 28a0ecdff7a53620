package location

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/types"
)

// Store persists locations in PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// FindNear returns the oldest location whose coordinates fall inside the
// tolerance box around p, or nil when none exists.
func (s *Store) FindNear(ctx context.Context, p types.Point, tolerance float64) (*Location, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, address, latitude, longitude, COALESCE(formatted_address, ''), last_verified
		FROM locations
		WHERE latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
		ORDER BY id ASC
		LIMIT 1`,
		p.Lat-tolerance, p.Lat+tolerance,
		p.Lng-tolerance, p.Lng+tolerance,
	)
	loc, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return loc, err
}

func (s *Store) Create(ctx context.Context, address string, p types.Point, formatted string) (*Location, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO locations (address, latitude, longitude, formatted_address, last_verified)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, address, latitude, longitude, COALESCE(formatted_address, ''), last_verified`,
		address, p.Lat, p.Lng, formatted,
	)
	return scanLocation(row)
}

// Touch updates the cached formatted address and bumps last_verified.
func (s *Store) Touch(ctx context.Context, id int64, formatted string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE locations
		SET formatted_address = $2, last_verified = NOW()
		WHERE id = $1`,
		id, formatted,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Location, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, address, latitude, longitude, COALESCE(formatted_address, ''), last_verified
		FROM locations
		WHERE id = $1`, id,
	)
	loc, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return loc, err
}

func scanLocation(row pgx.Row) (*Location, error) {
	var loc Location
	err := row.Scan(&loc.ID, &loc.Address, &loc.Point.Lat, &loc.Point.Lng,
		&loc.FormattedAddress, &loc.LastVerified)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}
