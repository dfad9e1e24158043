package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// UserStore is the MongoDB credential store.
type UserStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ repository.UserRepository = (*UserStore)(nil)

type userDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	Username       string             `bson:"username"`
	Email          string             `bson:"email"`
	Fullname       string             `bson:"fullname"`
	PasswordHash   string             `bson:"password"`
	ProfilePicture string             `bson:"profilePicture"`
	Avatar         string             `bson:"avatar"`
	RefreshToken   string             `bson:"refreshToken"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (d *userDoc) toModel() *model.User {
	return &model.User{
		ID:             d.ID.Hex(),
		Username:       d.Username,
		Email:          d.Email,
		Fullname:       d.Fullname,
		PasswordHash:   d.PasswordHash,
		ProfilePicture: d.ProfilePicture,
		Avatar:         d.Avatar,
		RefreshToken:   d.RefreshToken,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := s.now()
	doc := userDoc{
		ID:             primitive.NewObjectID(),
		Username:       user.Username,
		Email:          user.Email,
		Fullname:       user.Fullname,
		PasswordHash:   user.PasswordHash,
		ProfilePicture: user.ProfilePicture,
		Avatar:         user.Avatar,
		RefreshToken:   user.RefreshToken,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("A user with same username or email exists")
		}
		return fmt.Errorf("mongo: inserting user %q: %w", user.Username, err)
	}

	user.ID = doc.ID.Hex()
	user.CreatedAt = doc.CreatedAt
	user.UpdatedAt = doc.UpdatedAt
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.D, notFound error) (*model.User, error) {
	var doc userDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("mongo: finding user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, apperror.NotFound("user", id))
}

func (s *UserStore) GetByLogin(ctx context.Context, identifier string) (*model.User, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: identifier}},
		bson.D{{Key: "email", Value: identifier}},
	}}}
	return s.findOne(ctx, filter, apperror.NotFoundMsg("User does not exist"))
}

func (s *UserStore) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: username}},
		bson.D{{Key: "email", Value: email}},
	}}}
	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("mongo: checking user existence: %w", err)
	}
	return n > 0, nil
}

// set applies a $set to one user and reports NotFound when nothing matched.
func (s *UserStore) set(ctx context.Context, id string, fields bson.D) error {
	oid, ok := objectID(id)
	if !ok {
		return apperror.NotFound("user", id)
	}
	fields = append(fields, bson.E{Key: "updatedAt", Value: s.now()})

	res, err := s.coll.UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: fields}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("A user with same email exists")
		}
		return fmt.Errorf("mongo: updating user %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.set(ctx, id, bson.D{{Key: "password", Value: passwordHash}})
}

func (s *UserStore) UpdateAccountDetails(ctx context.Context, id, email, fullname string) (*model.User, error) {
	if err := s.set(ctx, id, bson.D{
		{Key: "email", Value: email},
		{Key: "fullname", Value: fullname},
	}); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.set(ctx, id, bson.D{{Key: "refreshToken", Value: token}})
}
