package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// RegistrationService signs users up for events and removes them again.
type RegistrationService struct {
	users         repository.UserRepository
	events        repository.EventRepository
	registrations repository.RegistrationRepository
	logger        *slog.Logger
}

func NewRegistrationService(
	users repository.UserRepository,
	events repository.EventRepository,
	registrations repository.RegistrationRepository,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		users:         users,
		events:        events,
		registrations: registrations,
		logger:        logger,
	}
}

var errEventMissing = apperror.NotFoundMsg("Invalid Event-ID | Event not found")

// Register adds attendee to the event. Checks run in a fixed order: the
// event must exist, the attendee must not be its host, and must not already
// be registered. The store's unique pair constraint catches a duplicate that
// slips past the existence check.
func (s *RegistrationService) Register(ctx context.Context, eventID string, attendee *model.User) (*model.RegistrationView, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if event.HostID == attendee.ID {
		return nil, apperror.Conflict("Registration Failed | Host need not register for their own events")
	}

	if _, err := s.registrations.Get(ctx, eventID, attendee.ID); err == nil {
		return nil, apperror.Conflict("Registration Failed | User has already registered for this event")
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("service/registration: checking registration: %w", err)
	}

	reg := &model.Registration{
		EventID:    event.ID,
		HostID:     event.HostID,
		AttendeeID: attendee.ID,
	}
	if err := s.registrations.Create(ctx, reg); err != nil {
		return nil, fmt.Errorf("service/registration: creating registration: %w", err)
	}

	host, err := s.users.GetByID(ctx, event.HostID)
	if err != nil {
		return nil, fmt.Errorf("service/registration: loading host %s: %w", event.HostID, err)
	}

	s.logger.Info("user registered for event",
		slog.String("eventID", event.ID),
		slog.String("attendeeID", attendee.ID),
	)

	return &model.RegistrationView{
		ID:           reg.ID,
		EventDetails: event.Info(),
		Host:         host.Summary(),
		Attendee:     attendee.Summary(),
		CreatedAt:    reg.CreatedAt,
	}, nil
}

// Deregister removes the user's registration for the event.
func (s *RegistrationService) Deregister(ctx context.Context, eventID, userID string) error {
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return err
	}

	if err := s.registrations.Delete(ctx, eventID, userID); err != nil {
		return fmt.Errorf("service/registration: deleting registration: %w", err)
	}

	s.logger.Info("user deregistered from event",
		slog.String("eventID", eventID),
		slog.String("attendeeID", userID),
	)
	return nil
}

func (s *RegistrationService) loadEvent(ctx context.Context, eventID string) (*model.Event, error) {
	if eventID == "" {
		return nil, apperror.ValidationFailed("eventId", "Event-ID not received")
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if isNotFound(err) {
			return nil, errEventMissing
		}
		return nil, fmt.Errorf("service/registration: fetching event %s: %w", eventID, err)
	}
	return event, nil
}
