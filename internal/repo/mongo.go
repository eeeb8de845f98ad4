package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/query"
)

// NewMongo builds a Store over the given database, using the tasks and users
// collections.
func NewMongo(db *mongo.Database) Store {
	return Store{
		Tasks: mongoTasks{c: db.Collection("tasks")},
		Users: mongoUsers{c: db.Collection("users")},
	}
}

// EnsureIndexes creates the unique email index duplicate detection relies on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type mongoTasks struct {
	c *mongo.Collection
}

func (r mongoTasks) Find(ctx context.Context, opts query.Options) ([]bson.M, error) {
	return findDocs(ctx, r.c, opts)
}

func (r mongoTasks) Count(ctx context.Context, filter bson.M) (int64, error) {
	return r.c.CountDocuments(ctx, filter)
}

func (r mongoTasks) FindByID(ctx context.Context, id primitive.ObjectID, projection bson.M) (bson.M, error) {
	return findDocByID(ctx, r.c, id, projection)
}

func (r mongoTasks) Get(ctx context.Context, id primitive.ObjectID) (domain.Task, error) {
	var t domain.Task
	err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return t, ErrNotFound
	}
	return t, err
}

func (r mongoTasks) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if t.DateCreated.IsZero() {
		t.DateCreated = time.Now().UTC()
	}
	_, err := r.c.InsertOne(ctx, t)
	return t, err
}

func (r mongoTasks) Replace(ctx context.Context, t domain.Task) error {
	res, err := r.c.ReplaceOne(ctx, bson.M{"_id": t.ID}, t)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r mongoTasks) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r mongoTasks) AssignMany(ctx context.Context, taskIDs []string, userID, userName string) error {
	oids := toObjectIDs(taskIDs)
	if len(oids) == 0 {
		return nil
	}
	_, err := r.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"$set": bson.M{"assignedUser": userID, "assignedUserName": userName}})
	return err
}

func (r mongoTasks) UnassignMany(ctx context.Context, taskIDs []string) error {
	oids := toObjectIDs(taskIDs)
	if len(oids) == 0 {
		return nil
	}
	_, err := r.c.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"$set": bson.M{"assignedUser": "", "assignedUserName": domain.UnassignedName}})
	return err
}

func (r mongoTasks) UnassignUser(ctx context.Context, userID string) error {
	_, err := r.c.UpdateMany(ctx,
		bson.M{"assignedUser": userID},
		bson.M{"$set": bson.M{"assignedUser": "", "assignedUserName": domain.UnassignedName}})
	return err
}

type mongoUsers struct {
	c *mongo.Collection
}

func (r mongoUsers) Find(ctx context.Context, opts query.Options) ([]bson.M, error) {
	return findDocs(ctx, r.c, opts)
}

func (r mongoUsers) Count(ctx context.Context, filter bson.M) (int64, error) {
	return r.c.CountDocuments(ctx, filter)
}

func (r mongoUsers) FindByID(ctx context.Context, id primitive.ObjectID, projection bson.M) (bson.M, error) {
	return findDocByID(ctx, r.c, id, projection)
}

func (r mongoUsers) Get(ctx context.Context, id primitive.ObjectID) (domain.User, error) {
	var u domain.User
	err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return u, ErrNotFound
	}
	return u, err
}

func (r mongoUsers) Insert(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.DateCreated.IsZero() {
		u.DateCreated = time.Now().UTC()
	}
	if u.PendingTasks == nil {
		u.PendingTasks = []string{}
	}
	_, err := r.c.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return u, ErrDuplicateEmail
	}
	return u, err
}

func (r mongoUsers) Replace(ctx context.Context, u domain.User) error {
	if u.PendingTasks == nil {
		u.PendingTasks = []string{}
	}
	res, err := r.c.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r mongoUsers) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r mongoUsers) AddPendingTask(ctx context.Context, userID, taskID string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	_, err = r.c.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$addToSet": bson.M{"pendingTasks": taskID}})
	return err
}

func (r mongoUsers) RemovePendingTask(ctx context.Context, userID, taskID string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	_, err = r.c.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$pull": bson.M{"pendingTasks": taskID}})
	return err
}

func findDocs(ctx context.Context, c *mongo.Collection, opts query.Options) ([]bson.M, error) {
	fo := options.Find()
	if opts.Projection != nil {
		fo.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.HasLimit {
		fo.SetLimit(opts.Limit)
	}
	cur, err := c.Find(ctx, opts.Filter, fo)
	if err != nil {
		return nil, err
	}
	docs := []bson.M{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func findDocByID(ctx context.Context, c *mongo.Collection, id primitive.ObjectID, projection bson.M) (bson.M, error) {
	fo := options.FindOne()
	if projection != nil {
		fo.SetProjection(projection)
	}
	var doc bson.M
	err := c.FindOne(ctx, bson.M{"_id": id}, fo).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return doc, err
}

func toObjectIDs(ids []string) []primitive.ObjectID {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	return oids
}
