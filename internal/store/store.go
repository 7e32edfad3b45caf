package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no profile is stored for an identity.
var ErrNotFound = errors.New("profile not found")

// Profile holds the display preferences of one identity.
type Profile struct {
	Name      string
	Color     string
	UpdatedAt time.Time
}

// ProfileStore handles profile persistence.
type ProfileStore interface {
	// GetProfile retrieves the profile for an identity.
	// Returns ErrNotFound if none is stored.
	GetProfile(ctx context.Context, identity string) (*Profile, error)

	// SaveProfile inserts or replaces the profile for an identity.
	SaveProfile(ctx context.Context, identity string, p Profile) error
}

// Store aggregates all storage interfaces.
type Store interface {
	ProfileStore

	// Close releases the underlying connection.
	Close() error
}
