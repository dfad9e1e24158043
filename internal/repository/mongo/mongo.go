// Package mongo implements the repository interfaces on MongoDB.
//
// Selected with DB_DRIVER=mongo. Uniqueness (username, email, event title,
// one registration per event+attendee) is enforced by unique indexes that
// EnsureIndexes creates at startup; duplicate-key errors map to
// apperror.ErrConflict. Document ids are ObjectIDs exposed as hex strings.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/eventhub/internal/repository"
)

const (
	usersCollection         = "users"
	eventsCollection        = "events"
	registrationsCollection = "eventregistrations"
)

// Store owns the client and hands out the three collection-backed stores.
type Store struct {
	client        *mongo.Client
	db            *mongo.Database
	users         *UserStore
	events        *EventStore
	registrations *RegistrationStore
}

var _ repository.Store = (*Store)(nil)

// Option tweaks a Store at construction time.
type Option func(*Store)

// WithNowFunc overrides the clock used for created/updated timestamps.
// Useful for testing.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.users.now = now
		s.events.now = now
		s.registrations.now = now
	}
}

// Connect dials MongoDB, pings it and makes sure the indexes exist.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	s := New(client, database, opts...)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an already connected client. It does not create indexes.
func New(client *mongo.Client, database string, opts ...Option) *Store {
	db := client.Database(database)
	now := func() time.Time { return time.Now().UTC() }

	s := &Store{
		client:        client,
		db:            db,
		users:         &UserStore{coll: db.Collection(usersCollection), now: now},
		registrations: &RegistrationStore{coll: db.Collection(registrationsCollection), now: now},
	}
	s.events = &EventStore{
		coll:          db.Collection(eventsCollection),
		registrations: s.registrations.coll,
		now:           now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the unique and lookup indexes. Creating an index that
// already exists with the same definition is a no-op on the server.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
		},
		eventsCollection: {
			{Keys: bson.D{{Key: "title", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "host", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		registrationsCollection: {
			{Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "attendee", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "attendee", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: creating indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Users() repository.UserRepository { return s.users }

func (s *Store) Events() repository.EventRepository { return s.events }

func (s *Store) Registrations() repository.RegistrationRepository { return s.registrations }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// objectID parses a hex id. A malformed id cannot match any document, so
// callers treat ok == false as not found.
func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// hexIDs converts an id-only cursor result into hex strings.
func hexIDs(ctx context.Context, cur *mongo.Cursor, field string) ([]string, error) {
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		v, ok := cur.Current.Lookup(field).ObjectIDOK()
		if !ok {
			continue
		}
		ids = append(ids, v.Hex())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
