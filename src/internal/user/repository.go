package user

import (
	"context"
	"errors"
	"time"

	"codecollab-auth-svc/src/clients"
	"codecollab-auth-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	regexKey   = "$regex"
	optionsKey = "$options"
)

type Repository interface {
	Insert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, userID string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetAllUsers(ctx context.Context, req *GetAllUsersRequest) ([]*User, int64, error)
	GetUserStats(ctx context.Context) (*models.Stats, error)
	SetActive(ctx context.Context, userID string, active bool) error
	Suspend(ctx context.Context, userID string, until *time.Time, reason string) error
	Unsuspend(ctx context.Context, userID string) error
	UpdateRole(ctx context.Context, userID, role string, permissions []string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	RecordLogin(ctx context.Context, userID string, now time.Time) error
	RecordFailedLogin(ctx context.Context, userID string, now time.Time) error
	EnsureIndexes(ctx context.Context) error
}

type userRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(mongoClient *clients.MongoDB, collectionName string) Repository {
	collection := mongoClient.Database.Collection(collectionName)
	return &userRepository{collection: collection}
}

func objectID(userID string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return primitive.NilObjectID, models.ErrInvalidParams
	}
	return id, nil
}

func (r *userRepository) Insert(ctx context.Context, u *User) error {
	result, err := r.collection.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrEmailTaken
		}
		logrus.WithError(err).Error("Failed to insert user")
		return models.ErrDatabaseInsert
	}

	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		u.ID = id
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*User, error) {
	id, err := objectID(userID)
	if err != nil {
		return nil, err
	}

	var user User
	err = r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to get user")
		return nil, models.ErrDatabaseQuery
	}

	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUserNotFound
		}
		logrus.WithError(err).Error("Failed to get user by email")
		return nil, models.ErrDatabaseQuery
	}

	return &user, nil
}

func (r *userRepository) GetAllUsers(ctx context.Context, req *GetAllUsersRequest) ([]*User, int64, error) {
	filter := bson.M{}

	if req.Role != "" {
		filter["role"] = req.Role
	}

	if req.Search != "" {
		filter["$or"] = []bson.M{
			{"first_name": bson.M{regexKey: req.Search, optionsKey: "i"}},
			{"last_name": bson.M{regexKey: req.Search, optionsKey: "i"}},
			{"email": bson.M{regexKey: req.Search, optionsKey: "i"}},
		}
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to count users")
		return nil, 0, models.ErrDatabaseQuery
	}

	skip := (req.Page - 1) * req.Limit

	opts := options.Find().
		SetLimit(int64(req.Limit)).
		SetSkip(int64(skip)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to find users")
		return nil, 0, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var users []*User
	for cursor.Next(ctx) {
		var user User
		if err := cursor.Decode(&user); err != nil {
			logrus.WithError(err).Error("Failed to decode user")
			continue
		}
		users = append(users, &user)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, 0, models.ErrDatabaseQuery
	}

	return users, totalCount, nil
}

func (r *userRepository) GetUserStats(ctx context.Context) (*models.Stats, error) {
	total, err := r.countUsers(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	active, err := r.countUsers(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}

	inactive, err := r.countUsers(ctx, bson.M{"is_active": false})
	if err != nil {
		return nil, err
	}

	suspended, err := r.countUsers(ctx, bson.M{"is_suspended": true})
	if err != nil {
		return nil, err
	}

	admins, err := r.countUsers(ctx, bson.M{"role": RoleAdmin})
	if err != nil {
		return nil, err
	}

	moderators, err := r.countUsers(ctx, bson.M{"role": RoleModerator})
	if err != nil {
		return nil, err
	}

	newThisMonth, err := r.countNewUsersThisMonth(ctx)
	if err != nil {
		return nil, err
	}

	return &models.Stats{
		Total:        total,
		Active:       active,
		Inactive:     inactive,
		Suspended:    suspended,
		Admins:       admins,
		Moderators:   moderators,
		NewThisMonth: newThisMonth,
	}, nil
}

func (r *userRepository) countUsers(ctx context.Context, filter bson.M) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to count users")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}

func (r *userRepository) countNewUsersThisMonth(ctx context.Context) (int64, error) {
	now := time.Now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	return r.countUsers(ctx, bson.M{"created_at": bson.M{"$gte": startOfMonth}})
}

func (r *userRepository) SetActive(ctx context.Context, userID string, active bool) error {
	return r.updateByID(ctx, userID, bson.M{"is_active": active})
}

func (r *userRepository) Suspend(ctx context.Context, userID string, until *time.Time, reason string) error {
	fields := bson.M{
		"is_suspended":      true,
		"suspension_reason": reason,
	}
	if until != nil {
		fields["suspended_until"] = *until
	}
	return r.updateByID(ctx, userID, fields)
}

func (r *userRepository) Unsuspend(ctx context.Context, userID string) error {
	id, err := objectID(userID)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"is_suspended": false,
			"updated_at":   time.Now(),
		},
		"$unset": bson.M{
			"suspended_until":   "",
			"suspension_reason": "",
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to unsuspend user")
		return models.ErrDatabaseUpdate
	}
	if result.MatchedCount == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) UpdateRole(ctx context.Context, userID, role string, permissions []string) error {
	return r.updateByID(ctx, userID, bson.M{
		"role":        role,
		"permissions": permissions,
	})
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.updateByID(ctx, userID, bson.M{"password_hash": passwordHash})
}

func (r *userRepository) RecordLogin(ctx context.Context, userID string, now time.Time) error {
	return r.updateByID(ctx, userID, bson.M{
		"last_login_at":         now,
		"failed_login_attempts": 0,
	})
}

func (r *userRepository) RecordFailedLogin(ctx context.Context, userID string, now time.Time) error {
	id, err := objectID(userID)
	if err != nil {
		return err
	}

	update := bson.M{
		"$inc": bson.M{"failed_login_attempts": 1},
		"$set": bson.M{"last_failed_login_at": now},
	}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to record failed login")
		return models.ErrDatabaseUpdate
	}
	return nil
}

func (r *userRepository) updateByID(ctx context.Context, userID string, fields bson.M) error {
	id, err := objectID(userID)
	if err != nil {
		return err
	}

	fields["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to update user")
		return models.ErrDatabaseUpdate
	}
	if result.MatchedCount == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logrus.WithError(err).Error("Failed to create user indexes")
		return models.ErrDatabaseConnection
	}

	return nil
}
