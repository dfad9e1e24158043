package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// RegistrationStore is the MongoDB registration ledger.
type RegistrationStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ repository.RegistrationRepository = (*RegistrationStore)(nil)

type registrationDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	EventID   primitive.ObjectID `bson:"eventId"`
	Host      primitive.ObjectID `bson:"host"`
	Attendee  primitive.ObjectID `bson:"attendee"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d *registrationDoc) toModel() model.Registration {
	return model.Registration{
		ID:         d.ID.Hex(),
		EventID:    d.EventID.Hex(),
		HostID:     d.Host.Hex(),
		AttendeeID: d.Attendee.Hex(),
		CreatedAt:  d.CreatedAt,
	}
}

var errNotRegistered = apperror.NotFoundMsg("You have not registered to this event")

func pairFilter(eventID, attendeeID string) (bson.D, bool) {
	ev, ok1 := objectID(eventID)
	at, ok2 := objectID(attendeeID)
	if !ok1 || !ok2 {
		return nil, false
	}
	return bson.D{{Key: "eventId", Value: ev}, {Key: "attendee", Value: at}}, true
}

// Create inserts a registration. The unique {eventId, attendee} index turns a
// concurrent duplicate into a duplicate-key error, reported as Conflict.
func (s *RegistrationStore) Create(ctx context.Context, reg *model.Registration) error {
	ev, ok1 := objectID(reg.EventID)
	host, ok2 := objectID(reg.HostID)
	at, ok3 := objectID(reg.AttendeeID)
	if !ok1 || !ok2 || !ok3 {
		return apperror.ValidationFailed("", "Invalid registration reference")
	}
	if host == at {
		return apperror.Conflict("Registration Failed | Host need not register for their own events")
	}

	doc := registrationDoc{
		ID:        primitive.NewObjectID(),
		EventID:   ev,
		Host:      host,
		Attendee:  at,
		CreatedAt: s.now(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("Registration Failed | User has already registered for this event")
		}
		return fmt.Errorf("mongo: creating registration: %w", err)
	}

	reg.ID = doc.ID.Hex()
	reg.CreatedAt = doc.CreatedAt
	return nil
}

func (s *RegistrationStore) Get(ctx context.Context, eventID, attendeeID string) (*model.Registration, error) {
	filter, ok := pairFilter(eventID, attendeeID)
	if !ok {
		return nil, errNotRegistered
	}

	var doc registrationDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, errNotRegistered
		}
		return nil, fmt.Errorf("mongo: getting registration: %w", err)
	}
	r := doc.toModel()
	return &r, nil
}

func (s *RegistrationStore) Delete(ctx context.Context, eventID, attendeeID string) error {
	filter, ok := pairFilter(eventID, attendeeID)
	if !ok {
		return errNotRegistered
	}

	res, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("mongo: deleting registration: %w", err)
	}
	if res.DeletedCount == 0 {
		return errNotRegistered
	}
	return nil
}

func (s *RegistrationStore) ListEventIDsByAttendee(ctx context.Context, attendeeID string) ([]string, error) {
	at, ok := objectID(attendeeID)
	if !ok {
		return []string{}, nil
	}

	cur, err := s.coll.Find(ctx, bson.D{{Key: "attendee", Value: at}},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
			SetProjection(bson.D{{Key: "eventId", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing registrations of %s: %w", attendeeID, err)
	}
	ids, err := hexIDs(ctx, cur, "eventId")
	if err != nil {
		return nil, fmt.Errorf("mongo: reading event ids: %w", err)
	}
	return ids, nil
}
