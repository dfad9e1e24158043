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

// EventStore is the MongoDB event store.
type EventStore struct {
	coll          *mongo.Collection
	registrations *mongo.Collection
	now           func() time.Time
}

var _ repository.EventRepository = (*EventStore)(nil)

type venueDoc struct {
	Address string  `bson:"address"`
	Lat     float64 `bson:"lat"`
	Long    float64 `bson:"long"`
}

type eventDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	Title           string             `bson:"title"`
	Description     string             `bson:"description"`
	IsEventOnline   bool               `bson:"isEventOnline"`
	Venue           *venueDoc          `bson:"venue,omitempty"`
	StartTime       string             `bson:"startTime"`
	EndTime         string             `bson:"endTime"`
	StartDate       time.Time          `bson:"startDate"`
	EndDate         time.Time          `bson:"endDate"`
	Thumbnail       string             `bson:"thumbnail"`
	Host            primitive.ObjectID `bson:"host"`
	RegistrationFee float64            `bson:"registrationFee"`
	RefundPolicy    string             `bson:"refundPolicy"`
	Tags            []string           `bson:"tags"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

// detailDoc is the shape produced by the GetDetail aggregation.
type detailDoc struct {
	eventDoc      `bson:",inline"`
	HostDoc       userDoc `bson:"hostDoc"`
	AttendeeCount int     `bson:"attendeeCount"`
}

func (d *eventDoc) toModel() *model.Event {
	e := &model.Event{
		ID:              d.ID.Hex(),
		Title:           d.Title,
		Description:     d.Description,
		IsEventOnline:   d.IsEventOnline,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		StartDate:       d.StartDate.UTC(),
		EndDate:         d.EndDate.UTC(),
		Thumbnail:       d.Thumbnail,
		HostID:          d.Host.Hex(),
		RegistrationFee: d.RegistrationFee,
		RefundPolicy:    d.RefundPolicy,
		Tags:            d.Tags,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if d.Venue != nil {
		e.Venue = &model.Venue{Address: d.Venue.Address, Lat: d.Venue.Lat, Long: d.Venue.Long}
	}
	return e
}

func toEventDoc(e *model.Event, id, host primitive.ObjectID) eventDoc {
	doc := eventDoc{
		ID:              id,
		Title:           e.Title,
		Description:     e.Description,
		IsEventOnline:   e.IsEventOnline,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		StartDate:       e.StartDate.UTC(),
		EndDate:         e.EndDate.UTC(),
		Thumbnail:       e.Thumbnail,
		Host:            host,
		RegistrationFee: e.RegistrationFee,
		RefundPolicy:    e.RefundPolicy,
		Tags:            e.Tags,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if e.Venue != nil {
		doc.Venue = &venueDoc{Address: e.Venue.Address, Lat: e.Venue.Lat, Long: e.Venue.Long}
	}
	return doc
}

func (s *EventStore) Create(ctx context.Context, event *model.Event) error {
	host, ok := objectID(event.HostID)
	if !ok {
		return apperror.ValidationFailed("host", "Invalid host id")
	}

	now := s.now()
	event.CreatedAt = now
	event.UpdatedAt = now
	doc := toEventDoc(event, primitive.NewObjectID(), host)

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("An event with the same title already exists")
		}
		return fmt.Errorf("mongo: creating event: %w", err)
	}
	event.ID = doc.ID.Hex()
	return nil
}

func (s *EventStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, apperror.NotFound("event", id)
	}

	var doc eventDoc
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("mongo: getting event %s: %w", id, err)
	}
	return doc.toModel(), nil
}

// GetDetail joins host and registrations with $lookup and counts attendees
// server-side.
func (s *EventStore) GetDetail(ctx context.Context, id string) (*model.EventDetail, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, apperror.NotFound("event", id)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: oid}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersCollection},
			{Key: "localField", Value: "host"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "hostDoc"},
		}}},
		{{Key: "$unwind", Value: "$hostDoc"}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: registrationsCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "eventId"},
			{Key: "as", Value: "attendees"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "attendeeCount", Value: bson.D{{Key: "$size", Value: "$attendees"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "attendees", Value: 0},
			{Key: "hostDoc.password", Value: 0},
			{Key: "hostDoc.refreshToken", Value: 0},
		}}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo: aggregating event detail %s: %w", id, err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("mongo: reading event detail %s: %w", id, err)
		}
		return nil, apperror.NotFound("event", id)
	}

	var doc detailDoc
	if err := cur.Decode(&doc); err != nil {
		return nil, fmt.Errorf("mongo: decoding event detail %s: %w", id, err)
	}

	return &model.EventDetail{
		Event:         *doc.eventDoc.toModel(),
		Host:          doc.HostDoc.toModel().Summary(),
		AttendeeCount: doc.AttendeeCount,
	}, nil
}

func (s *EventStore) ListSummaries(ctx context.Context, opts repository.ListOptions) ([]model.EventSummary, error) {
	opts = opts.Normalize()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit)).
		SetProjection(bson.D{
			{Key: "description", Value: 0},
			{Key: "venue", Value: 0},
			{Key: "tags", Value: 0},
			{Key: "refundPolicy", Value: 0},
		})

	cur, err := s.coll.Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing events: %w", err)
	}

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding events: %w", err)
	}

	out := make([]model.EventSummary, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toModel().Summary())
	}
	return out, nil
}

func (s *EventStore) TitleExists(ctx context.Context, title string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "title", Value: title}})
	if err != nil {
		return false, fmt.Errorf("mongo: checking event title: %w", err)
	}
	return n > 0, nil
}

func (s *EventStore) Update(ctx context.Context, event *model.Event) error {
	oid, ok := objectID(event.ID)
	if !ok {
		return apperror.NotFound("event", event.ID)
	}
	event.UpdatedAt = s.now()

	doc := toEventDoc(event, oid, primitive.NilObjectID)
	set := bson.D{
		{Key: "title", Value: doc.Title},
		{Key: "description", Value: doc.Description},
		{Key: "isEventOnline", Value: doc.IsEventOnline},
		{Key: "startTime", Value: doc.StartTime},
		{Key: "endTime", Value: doc.EndTime},
		{Key: "startDate", Value: doc.StartDate},
		{Key: "endDate", Value: doc.EndDate},
		{Key: "thumbnail", Value: doc.Thumbnail},
		{Key: "registrationFee", Value: doc.RegistrationFee},
		{Key: "refundPolicy", Value: doc.RefundPolicy},
		{Key: "tags", Value: doc.Tags},
		{Key: "updatedAt", Value: doc.UpdatedAt},
	}
	var update bson.D
	if doc.Venue != nil {
		set = append(set, bson.E{Key: "venue", Value: doc.Venue})
		update = bson.D{{Key: "$set", Value: set}}
	} else {
		update = bson.D{
			{Key: "$set", Value: set},
			{Key: "$unset", Value: bson.D{{Key: "venue", Value: ""}}},
		}
	}

	res, err := s.coll.UpdateByID(ctx, oid, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("An event with the same title already exists")
		}
		return fmt.Errorf("mongo: updating event %s: %w", event.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("event", event.ID)
	}
	return nil
}

// Delete removes registrations first, then the event. Without a replica set
// there is no multi-document transaction, so a crash between the two leaves
// an event with no registrations rather than registrations with no event.
func (s *EventStore) Delete(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return apperror.NotFound("event", id)
	}

	if _, err := s.registrations.DeleteMany(ctx, bson.D{{Key: "eventId", Value: oid}}); err != nil {
		return fmt.Errorf("mongo: deleting registrations of event %s: %w", id, err)
	}

	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("mongo: deleting event %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("event", id)
	}
	return nil
}

func (s *EventStore) ListIDsByHost(ctx context.Context, hostID string) ([]string, error) {
	host, ok := objectID(hostID)
	if !ok {
		return []string{}, nil
	}

	cur, err := s.coll.Find(ctx, bson.D{{Key: "host", Value: host}},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
			SetProjection(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing events of host %s: %w", hostID, err)
	}
	ids, err := hexIDs(ctx, cur, "_id")
	if err != nil {
		return nil, fmt.Errorf("mongo: reading event ids: %w", err)
	}
	return ids, nil
}
