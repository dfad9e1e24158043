// Package repository declares the storage contracts the service layer relies on.
//
// Two implementations exist: repository/sqlite (default, embedded) and
// repository/mongo. Both translate driver errors into apperror values:
// a missing row is apperror.ErrNotFound, and a unique-index violation is
// apperror.ErrConflict.
package repository

import (
	"context"

	"github.com/sakif/eventhub/internal/model"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps the options into the accepted range.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// UserRepository is the credential store.
type UserRepository interface {
	// Create inserts a new user. A taken username or email is ErrConflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByLogin finds a user whose username or email equals identifier.
	GetByLogin(ctx context.Context, identifier string) (*model.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// UpdateAccountDetails overwrites email and fullname. A taken email is ErrConflict.
	UpdateAccountDetails(ctx context.Context, id, email, fullname string) (*model.User, error)
	// SetRefreshToken stores the active refresh token; "" clears it.
	SetRefreshToken(ctx context.Context, id, token string) error
}

type EventRepository interface {
	// Create inserts a new event. A taken title is ErrConflict.
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// GetDetail returns the event joined with its host and attendee count.
	GetDetail(ctx context.Context, id string) (*model.EventDetail, error)
	ListSummaries(ctx context.Context, opts ListOptions) ([]model.EventSummary, error)
	TitleExists(ctx context.Context, title string) (bool, error)
	// Update overwrites every mutable field. HostID and CreatedAt are left alone.
	Update(ctx context.Context, event *model.Event) error
	// Delete removes the event and every registration for it.
	Delete(ctx context.Context, id string) error
	ListIDsByHost(ctx context.Context, hostID string) ([]string, error)
}

// RegistrationRepository is the registration ledger's storage.
type RegistrationRepository interface {
	// Create inserts a registration. A second row for the same
	// (event, attendee) pair is ErrConflict.
	Create(ctx context.Context, reg *model.Registration) error
	Get(ctx context.Context, eventID, attendeeID string) (*model.Registration, error)
	Delete(ctx context.Context, eventID, attendeeID string) error
	ListEventIDsByAttendee(ctx context.Context, attendeeID string) ([]string, error)
}

// Store bundles the three repositories plus lifecycle hooks. Both backends
// implement it, so cmd/server can pick one at startup.
type Store interface {
	Users() UserRepository
	Events() EventRepository
	Registrations() RegistrationRepository
	Ping(ctx context.Context) error
	Close() error
}
