package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/media"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
	"github.com/sakif/eventhub/internal/validation"
)

const (
	// MaxTags caps the tag set after trimming and de-duplication.
	MaxTags    = 20
	dateLayout = "2006-01-02"
)

// EventInput carries the create form. Dates, times, coordinates and the fee
// arrive as text (multipart fields) and are parsed by buildEvent.
type EventInput struct {
	Title           string   `json:"title" validate:"required,max=200"`
	Description     string   `json:"description" validate:"required,max=5000"`
	IsEventOnline   bool     `json:"isEventOnline"`
	Address         string   `json:"address" validate:"required_if=IsEventOnline false"`
	Lat             string   `json:"lat" validate:"required_if=IsEventOnline false"`
	Long            string   `json:"long" validate:"required_if=IsEventOnline false"`
	StartTime       string   `json:"startTime" validate:"required,hhmm"`
	EndTime         string   `json:"endTime" validate:"required,hhmm"`
	StartDate       string   `json:"startDate" validate:"required"`
	EndDate         string   `json:"endDate" validate:"required"`
	RegistrationFee string   `json:"registrationFee"`
	RefundPolicy    string   `json:"refundPolicy"`
	Tags            []string `json:"tags"`
}

// EventPatch is a partial update. Nil fields keep their current value.
type EventPatch struct {
	Title           *string
	Description     *string
	IsEventOnline   *bool
	Address         *string
	Lat             *string
	Long            *string
	StartTime       *string
	EndTime         *string
	StartDate       *string
	EndDate         *string
	RegistrationFee *string
	RefundPolicy    *string
	Tags            []string
}

func (p EventPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.IsEventOnline == nil &&
		p.Address == nil && p.Lat == nil && p.Long == nil &&
		p.StartTime == nil && p.EndTime == nil && p.StartDate == nil && p.EndDate == nil &&
		p.RegistrationFee == nil && p.RefundPolicy == nil && p.Tags == nil
}

// EventService owns event creation, lookup, edits and deletion.
type EventService struct {
	events   repository.EventRepository
	images   media.Store
	validate *validation.Validator
	logger   *slog.Logger
}

func NewEventService(events repository.EventRepository, images media.Store, validate *validation.Validator, logger *slog.Logger) *EventService {
	return &EventService{
		events:   events,
		images:   images,
		validate: validate,
		logger:   logger,
	}
}

// Create validates the form, checks the title is free, uploads the thumbnail
// and stores the event. The upload happens only once everything else has
// passed, and is removed again if the insert fails.
func (s *EventService) Create(ctx context.Context, host *model.User, in EventInput, thumbnail *media.Upload) (*model.Event, error) {
	event, err := s.buildEvent(in)
	if err != nil {
		return nil, err
	}
	if thumbnail == nil {
		return nil, apperror.ValidationFailed("thumbnail", "thumbnail is required")
	}

	taken, err := s.events.TitleExists(ctx, event.Title)
	if err != nil {
		return nil, fmt.Errorf("service/event: checking title: %w", err)
	}
	if taken {
		return nil, apperror.Conflict("An event with the same title already exists")
	}

	url, err := s.images.Save(ctx, thumbnail)
	if err != nil {
		return nil, fmt.Errorf("service/event: uploading thumbnail: %w", err)
	}

	event.Thumbnail = url
	event.HostID = host.ID
	if err := s.events.Create(ctx, event); err != nil {
		s.discardImage(ctx, url)
		return nil, fmt.Errorf("service/event: creating event: %w", err)
	}

	s.logger.Info("event created",
		slog.String("eventID", event.ID),
		slog.String("hostID", host.ID),
		slog.String("title", event.Title),
	)
	return event, nil
}

// GetByID returns the event with its host summary and attendee count.
func (s *EventService) GetByID(ctx context.Context, id string) (*model.EventDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("eventId", "Event-ID not received")
	}

	detail, err := s.events.GetDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/event: fetching event %s: %w", id, err)
	}
	return detail, nil
}

// List returns one page of event summaries, newest first.
func (s *EventService) List(ctx context.Context, opts repository.ListOptions) ([]model.EventSummary, error) {
	events, err := s.events.ListSummaries(ctx, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("service/event: listing events: %w", err)
	}
	return events, nil
}

// loadHosted fetches an event and checks userID is its host.
func (s *EventService) loadHosted(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("service/event: fetching event %s: %w", eventID, err)
	}
	if event.HostID != userID {
		return nil, apperror.Unauthorized("Only the host of this event can modify it")
	}
	return event, nil
}

// UpdateDetails applies a partial update. The merged result goes through the
// same checks as Create.
func (s *EventService) UpdateDetails(ctx context.Context, eventID, userID string, patch EventPatch) (*model.Event, error) {
	existing, err := s.loadHosted(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if patch.empty() {
		return nil, apperror.ValidationFailed("", "No fields to update")
	}

	in := inputFromEvent(existing)
	patch.applyTo(&in)

	merged, err := s.buildEvent(in)
	if err != nil {
		return nil, err
	}

	if merged.Title != existing.Title {
		taken, err := s.events.TitleExists(ctx, merged.Title)
		if err != nil {
			return nil, fmt.Errorf("service/event: checking title: %w", err)
		}
		if taken {
			return nil, apperror.Conflict("An event with the same title already exists")
		}
	}

	merged.ID = existing.ID
	merged.HostID = existing.HostID
	merged.Thumbnail = existing.Thumbnail
	merged.CreatedAt = existing.CreatedAt
	if err := s.events.Update(ctx, merged); err != nil {
		return nil, fmt.Errorf("service/event: updating event %s: %w", eventID, err)
	}

	s.logger.Info("event updated", slog.String("eventID", eventID))
	return merged, nil
}

// UpdateThumbnail swaps the event image. The old file is removed only after
// the new URL is stored.
func (s *EventService) UpdateThumbnail(ctx context.Context, eventID, userID string, thumbnail *media.Upload) (*model.Event, error) {
	event, err := s.loadHosted(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if thumbnail == nil {
		return nil, apperror.ValidationFailed("thumbnail", "thumbnail is required")
	}

	url, err := s.images.Save(ctx, thumbnail)
	if err != nil {
		return nil, fmt.Errorf("service/event: uploading thumbnail: %w", err)
	}

	old := event.Thumbnail
	event.Thumbnail = url
	if err := s.events.Update(ctx, event); err != nil {
		s.discardImage(ctx, url)
		return nil, fmt.Errorf("service/event: updating thumbnail of %s: %w", eventID, err)
	}
	s.discardImage(ctx, old)

	s.logger.Info("event thumbnail updated", slog.String("eventID", eventID))
	return event, nil
}

// Delete removes a hosted event together with its registrations.
func (s *EventService) Delete(ctx context.Context, eventID, userID string) error {
	event, err := s.loadHosted(ctx, eventID, userID)
	if err != nil {
		return err
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("service/event: deleting event %s: %w", eventID, err)
	}
	s.discardImage(ctx, event.Thumbnail)

	s.logger.Info("event deleted",
		slog.String("eventID", eventID),
		slog.String("hostID", userID),
	)
	return nil
}

// discardImage deletes a stored image and only logs on failure; a leftover
// file never fails the request.
func (s *EventService) discardImage(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := s.images.Delete(ctx, url); err != nil {
		s.logger.Warn("could not remove image", slog.String("url", url), slog.Any("error", err))
	}
}

// buildEvent trims and validates the input and converts it into an event
// without id, host or thumbnail.
func (s *EventService) buildEvent(in EventInput) (*model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Address = strings.TrimSpace(in.Address)
	in.Lat = strings.TrimSpace(in.Lat)
	in.Long = strings.TrimSpace(in.Long)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.EndDate = strings.TrimSpace(in.EndDate)
	in.RegistrationFee = strings.TrimSpace(in.RegistrationFee)
	in.RefundPolicy = strings.TrimSpace(in.RefundPolicy)

	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	startDate, err := parseDate("startDate", in.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("endDate", in.EndDate)
	if err != nil {
		return nil, err
	}
	if endDate.Before(startDate) {
		return nil, apperror.ValidationFailed("endDate", "endDate cannot be before startDate")
	}

	fee := 0.0
	if in.RegistrationFee != "" {
		fee, err = parseFinite(in.RegistrationFee)
		if err != nil {
			return nil, apperror.ValidationFailed("registrationFee", "registrationFee must be a number")
		}
		if fee < 0 {
			return nil, apperror.ValidationFailed("registrationFee", "registrationFee must be greater than or equal to 0")
		}
	}

	tags := normalizeTags(in.Tags)
	if len(tags) > MaxTags {
		return nil, apperror.ValidationFailed("tags", fmt.Sprintf("tags must have at most %d items", MaxTags))
	}

	event := &model.Event{
		Title:           in.Title,
		Description:     in.Description,
		IsEventOnline:   in.IsEventOnline,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		StartDate:       startDate,
		EndDate:         endDate,
		RegistrationFee: fee,
		RefundPolicy:    in.RefundPolicy,
		Tags:            tags,
	}
	if event.RefundPolicy == "" {
		event.RefundPolicy = model.DefaultRefundPolicy
	}

	if !in.IsEventOnline {
		venue, err := parseVenue(in.Address, in.Lat, in.Long)
		if err != nil {
			return nil, err
		}
		event.Venue = venue
	}
	return event, nil
}

// parseDate accepts a bare calendar date or a full RFC 3339 timestamp and
// keeps only the date, at midnight UTC.
func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		t, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, apperror.ValidationFailed(field, field+" must be a date in YYYY-MM-DD format")
		}
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func parseVenue(address, lat, long string) (*model.Venue, error) {
	la, err := parseFinite(lat)
	if err != nil || la < -90 || la > 90 {
		return nil, apperror.ValidationFailed("lat", "lat must be a number between -90 and 90")
	}
	lo, err := parseFinite(long)
	if err != nil || lo < -180 || lo > 180 {
		return nil, apperror.ValidationFailed("long", "long must be a number between -180 and 180")
	}
	return &model.Venue{Address: address, Lat: la, Long: lo}, nil
}

// parseFinite is strconv.ParseFloat without the "Inf" and "NaN" spellings,
// which would pass every range check and cannot be encoded as JSON.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}

// normalizeTags trims, lower-cases and de-duplicates, keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// inputFromEvent renders a stored event back into form values so a patch can
// be merged and re-validated.
func inputFromEvent(e *model.Event) EventInput {
	in := EventInput{
		Title:           e.Title,
		Description:     e.Description,
		IsEventOnline:   e.IsEventOnline,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		StartDate:       e.StartDate.UTC().Format(dateLayout),
		EndDate:         e.EndDate.UTC().Format(dateLayout),
		RegistrationFee: strconv.FormatFloat(e.RegistrationFee, 'f', -1, 64),
		RefundPolicy:    e.RefundPolicy,
		Tags:            append([]string(nil), e.Tags...),
	}
	if e.Venue != nil {
		in.Address = e.Venue.Address
		in.Lat = strconv.FormatFloat(e.Venue.Lat, 'f', -1, 64)
		in.Long = strconv.FormatFloat(e.Venue.Long, 'f', -1, 64)
	}
	return in
}

func (p EventPatch) applyTo(in *EventInput) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&in.Title, p.Title)
	set(&in.Description, p.Description)
	set(&in.Address, p.Address)
	set(&in.Lat, p.Lat)
	set(&in.Long, p.Long)
	set(&in.StartTime, p.StartTime)
	set(&in.EndTime, p.EndTime)
	set(&in.StartDate, p.StartDate)
	set(&in.EndDate, p.EndDate)
	set(&in.RegistrationFee, p.RegistrationFee)
	set(&in.RefundPolicy, p.RefundPolicy)
	if p.IsEventOnline != nil {
		in.IsEventOnline = *p.IsEventOnline
	}
	if p.Tags != nil {
		in.Tags = p.Tags
	}
}

// isNotFound is shared by the registration ledger.
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
