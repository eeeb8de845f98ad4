// Package repo holds the persistence contracts for tasks and users plus the
// Mongo-backed and in-memory implementations.
package repo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/query"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
)

// Tasks is the task-collection contract. Find and FindByID return raw
// documents because projections can strip arbitrary fields; Get returns the
// typed document for the mutation paths that need the full old state.
type Tasks interface {
	Find(ctx context.Context, opts query.Options) ([]bson.M, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
	FindByID(ctx context.Context, id primitive.ObjectID, projection bson.M) (bson.M, error)
	Get(ctx context.Context, id primitive.ObjectID) (domain.Task, error)
	Insert(ctx context.Context, t domain.Task) (domain.Task, error)
	Replace(ctx context.Context, t domain.Task) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	// Bulk reconciliation writes. Ids are the hex strings stored in
	// user.pendingTasks; entries that do not decode are skipped.
	AssignMany(ctx context.Context, taskIDs []string, userID, userName string) error
	UnassignMany(ctx context.Context, taskIDs []string) error
	UnassignUser(ctx context.Context, userID string) error
}

// Users is the user-collection contract. Insert and Replace surface
// ErrDuplicateEmail when the unique email index rejects the write.
type Users interface {
	Find(ctx context.Context, opts query.Options) ([]bson.M, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
	FindByID(ctx context.Context, id primitive.ObjectID, projection bson.M) (bson.M, error)
	Get(ctx context.Context, id primitive.ObjectID) (domain.User, error)
	Insert(ctx context.Context, u domain.User) (domain.User, error)
	Replace(ctx context.Context, u domain.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	// Idempotent membership writes on pendingTasks. A missing user is not an
	// error; the write simply matches nothing.
	AddPendingTask(ctx context.Context, userID, taskID string) error
	RemovePendingTask(ctx context.Context, userID, taskID string) error
}

type Store struct {
	Tasks Tasks
	Users Users
}
