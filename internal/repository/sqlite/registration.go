package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// RegistrationDB is the SQLite registration ledger.
type RegistrationDB struct {
	conn *sql.DB
}

var _ repository.RegistrationRepository = (*RegistrationDB)(nil)

// Create inserts a registration row.
//
// UNIQUE(event_id, attendee_id) is what actually prevents double
// registration when two requests race past the service's existence check.
// A violation of it is reported as a Conflict, as is the CHECK that keeps
// the host out of their own attendee list. An event deleted after the
// service looked it up fails the foreign key and reads as NotFound.
func (d *RegistrationDB) Create(ctx context.Context, reg *model.Registration) error {
	reg.ID = xid.New().String()
	reg.CreatedAt = time.Now().UTC()

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO registrations (id, event_id, host_id, attendee_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		reg.ID, reg.EventID, reg.HostID, reg.AttendeeID, reg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Registration Failed | User has already registered for this event")
		}
		if isCheckViolation(err) {
			return apperror.Conflict("Registration Failed | Host need not register for their own events")
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFoundMsg("Invalid Event-ID | Event not found")
		}
		return fmt.Errorf("sqlite: creating registration: %w", err)
	}
	return nil
}

func (d *RegistrationDB) Get(ctx context.Context, eventID, attendeeID string) (*model.Registration, error) {
	var r model.Registration
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, event_id, host_id, attendee_id, created_at
		 FROM registrations
		 WHERE event_id = ? AND attendee_id = ?`,
		eventID, attendeeID,
	).Scan(&r.ID, &r.EventID, &r.HostID, &r.AttendeeID, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundMsg("You have not registered to this event")
		}
		return nil, fmt.Errorf("sqlite: getting registration: %w", err)
	}
	return &r, nil
}

func (d *RegistrationDB) Delete(ctx context.Context, eventID, attendeeID string) error {
	result, err := d.conn.ExecContext(ctx,
		`DELETE FROM registrations WHERE event_id = ? AND attendee_id = ?`,
		eventID, attendeeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting registration: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFoundMsg("You have not registered to this event")
	}
	return nil
}

func (d *RegistrationDB) ListEventIDsByAttendee(ctx context.Context, attendeeID string) ([]string, error) {
	return queryIDs(ctx, d.conn,
		`SELECT event_id FROM registrations WHERE attendee_id = ? ORDER BY created_at DESC, id DESC`,
		attendeeID)
}
