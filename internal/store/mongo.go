package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dinner_recipe_bot/internal/domain"
)

var _ domain.SettingsStore = (*MongoStore)(nil)

type stateCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

type lifecycle interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// MongoStore persists user states in the user_states collection.
type MongoStore struct {
	states stateCollection
	conn   lifecycle
}

// NewMongoStore constructs a MongoStore over the provided collection. conn
// may be nil when lifecycle is managed elsewhere.
func NewMongoStore(states stateCollection, conn lifecycle) *MongoStore {
	return &MongoStore{states: states, conn: conn}
}

// Get finds the document of userID.
func (s *MongoStore) Get(ctx context.Context, userID int64) (domain.UserState, bool, error) {
	if s == nil || s.states == nil {
		return domain.UserState{}, false, errors.New("mongo store is not initialized")
	}
	if userID == 0 {
		return domain.UserState{}, false, errUserIDRequired
	}

	result := s.states.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return domain.UserState{}, false, errors.New("find user state returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.UserState{}, false, nil
		}
		return domain.UserState{}, false, fmt.Errorf("find user state: %w", err)
	}

	var state domain.UserState
	if err := result.Decode(&state); err != nil {
		return domain.UserState{}, false, fmt.Errorf("decode user state: %w", err)
	}

	return state, true, nil
}

// Set upserts the document of state.UserID.
func (s *MongoStore) Set(ctx context.Context, state domain.UserState) error {
	if s == nil || s.states == nil {
		return errors.New("mongo store is not initialized")
	}
	if state.UserID == 0 {
		return fmt.Errorf("set user state: %w", errUserIDRequired)
	}

	state.Normalize()
	state.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.states.ReplaceOne(ctx,
		bson.M{"user_id": state.UserID},
		state,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace user state: %w", err)
	}

	return nil
}

// Update reads, mutates and replaces the document. It is not atomic across
// writers; the dispatch loop serializes all writers.
func (s *MongoStore) Update(ctx context.Context, userID int64, fn func(*domain.UserState) error) (domain.UserState, error) {
	state, ok, err := s.Get(ctx, userID)
	if err != nil {
		return domain.UserState{}, err
	}
	if !ok {
		return domain.UserState{}, domain.ErrStateNotFound
	}

	if err := fn(&state); err != nil {
		return domain.UserState{}, err
	}
	state.UserID = userID

	if err := s.Set(ctx, state); err != nil {
		return domain.UserState{}, err
	}

	state.Normalize()
	return state, nil
}

// Ping checks the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Ping(ctx)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close(ctx)
}
