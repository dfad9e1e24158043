package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// EventDB is the SQLite event store.
type EventDB struct {
	conn *sql.DB
}

var _ repository.EventRepository = (*EventDB)(nil)

const eventColumns = `e.id, e.title, e.description, e.is_event_online,
	e.venue_address, e.venue_lat, e.venue_long,
	e.start_time, e.end_time, e.start_date, e.end_date,
	e.thumbnail, e.host_id, e.registration_fee, e.refund_policy, e.tags,
	e.created_at, e.updated_at`

// eventRow holds the columns that need conversion before they fit model.Event.
type eventRow struct {
	address sql.NullString
	lat     sql.NullFloat64
	long    sql.NullFloat64
	tags    string
}

func (r *eventRow) dest(e *model.Event) []any {
	return []any{
		&e.ID, &e.Title, &e.Description, &e.IsEventOnline,
		&r.address, &r.lat, &r.long,
		&e.StartTime, &e.EndTime, &e.StartDate, &e.EndDate,
		&e.Thumbnail, &e.HostID, &e.RegistrationFee, &e.RefundPolicy, &r.tags,
		&e.CreatedAt, &e.UpdatedAt,
	}
}

func (r *eventRow) finish(e *model.Event) error {
	if r.address.Valid {
		e.Venue = &model.Venue{
			Address: r.address.String,
			Lat:     r.lat.Float64,
			Long:    r.long.Float64,
		}
	}
	e.Tags = []string{}
	if r.tags != "" {
		if err := json.Unmarshal([]byte(r.tags), &e.Tags); err != nil {
			return fmt.Errorf("decoding tags of event %s: %w", e.ID, err)
		}
	}
	return nil
}

// venueArgs flattens an optional venue into three nullable columns.
func venueArgs(v *model.Venue) (any, any, any) {
	if v == nil {
		return nil, nil, nil
	}
	return v.Address, v.Lat, v.Long
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	return string(b), nil
}

func (d *EventDB) Create(ctx context.Context, event *model.Event) error {
	now := time.Now().UTC()
	event.ID = xid.New().String()
	event.CreatedAt = now
	event.UpdatedAt = now

	tags, err := encodeTags(event.Tags)
	if err != nil {
		return err
	}
	addr, lat, long := venueArgs(event.Venue)

	_, err = d.conn.ExecContext(ctx,
		`INSERT INTO events (id, title, description, is_event_online,
			venue_address, venue_lat, venue_long,
			start_time, end_time, start_date, end_date,
			thumbnail, host_id, registration_fee, refund_policy, tags,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Title, event.Description, event.IsEventOnline,
		addr, lat, long,
		event.StartTime, event.EndTime, event.StartDate.UTC(), event.EndDate.UTC(),
		event.Thumbnail, event.HostID, event.RegistrationFee, event.RefundPolicy, tags,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("An event with the same title already exists")
		}
		if isCheckViolation(err) {
			return apperror.ValidationFailed("", "Event fields violate a storage constraint")
		}
		return fmt.Errorf("sqlite: creating event: %w", err)
	}
	return nil
}

func (d *EventDB) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var (
		e   model.Event
		row eventRow
	)
	err := d.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id,
	).Scan(row.dest(&e)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("sqlite: getting event %s: %w", id, err)
	}
	if err := row.finish(&e); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return &e, nil
}

// GetDetail joins the event with its host and counts registrations in one
// round trip. An event whose host row is gone does not join and is reported
// as not found.
func (d *EventDB) GetDetail(ctx context.Context, id string) (*model.EventDetail, error) {
	var (
		detail model.EventDetail
		row    eventRow
	)
	dest := append(row.dest(&detail.Event),
		&detail.Host.ID,
		&detail.Host.Username,
		&detail.Host.Fullname,
		&detail.Host.Email,
		&detail.Host.Avatar,
		&detail.AttendeeCount,
	)

	err := d.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+`,
			u.id, u.username, u.fullname, u.email, u.avatar,
			(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		 FROM events e
		 JOIN users u ON u.id = e.host_id
		 WHERE e.id = ?`,
		id,
	).Scan(dest...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("sqlite: getting event detail %s: %w", id, err)
	}
	if err := row.finish(&detail.Event); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return &detail, nil
}

// ListSummaries returns the listing projection, newest first.
func (d *EventDB) ListSummaries(ctx context.Context, opts repository.ListOptions) ([]model.EventSummary, error) {
	opts = opts.Normalize()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, title, is_event_online, start_date, end_date,
			start_time, end_time, thumbnail, registration_fee
		 FROM events
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit,
		opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}
	defer rows.Close()

	events := make([]model.EventSummary, 0, opts.Limit)
	for rows.Next() {
		var s model.EventSummary
		if err := rows.Scan(
			&s.ID, &s.Title, &s.IsEventOnline, &s.StartDate, &s.EndDate,
			&s.StartTime, &s.EndTime, &s.Thumbnail, &s.RegistrationFee,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning event row: %w", err)
		}
		events = append(events, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating events: %w", err)
	}
	return events, nil
}

func (d *EventDB) TitleExists(ctx context.Context, title string) (bool, error) {
	var n int
	if err := d.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE title = ?`, title,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: checking event title: %w", err)
	}
	return n > 0, nil
}

// Update rewrites every mutable column. host_id and created_at are never
// touched.
func (d *EventDB) Update(ctx context.Context, event *model.Event) error {
	event.UpdatedAt = time.Now().UTC()

	tags, err := encodeTags(event.Tags)
	if err != nil {
		return err
	}
	addr, lat, long := venueArgs(event.Venue)

	result, err := d.conn.ExecContext(ctx,
		`UPDATE events
		 SET title = ?, description = ?, is_event_online = ?,
			venue_address = ?, venue_lat = ?, venue_long = ?,
			start_time = ?, end_time = ?, start_date = ?, end_date = ?,
			thumbnail = ?, registration_fee = ?, refund_policy = ?, tags = ?,
			updated_at = ?
		 WHERE id = ?`,
		event.Title, event.Description, event.IsEventOnline,
		addr, lat, long,
		event.StartTime, event.EndTime, event.StartDate.UTC(), event.EndDate.UTC(),
		event.Thumbnail, event.RegistrationFee, event.RefundPolicy, tags,
		event.UpdatedAt,
		event.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("An event with the same title already exists")
		}
		if isCheckViolation(err) {
			return apperror.ValidationFailed("", "Event fields violate a storage constraint")
		}
		return fmt.Errorf("sqlite: updating event %s: %w", event.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("event", event.ID)
	}
	return nil
}

// Delete removes the event's registrations and then the event, in one
// transaction. The ON DELETE CASCADE on registrations would cover the first
// statement too, but only while foreign_keys is on for the connection.
func (d *EventDB) Delete(ctx context.Context, id string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete of event %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting registrations of event %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting event %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("event", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of event %s: %w", id, err)
	}
	return nil
}

func (d *EventDB) ListIDsByHost(ctx context.Context, hostID string) ([]string, error) {
	return queryIDs(ctx, d.conn,
		`SELECT id FROM events WHERE host_id = ? ORDER BY created_at DESC, id DESC`, hostID)
}

// queryIDs runs a single-column query and collects the results.
func queryIDs(ctx context.Context, conn *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ids: %w", err)
	}
	return ids, nil
}
