// Package engine keeps task.assignedUser and user.pendingTasks mutually
// consistent after mutations. Consistency is best effort: secondary writes
// never fail or roll back the primary operation, and most run detached from
// the request that triggered them.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/events"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/repo"
)

// writeTimeout bounds detached reconciliation writes, which no longer have a
// request context to inherit from.
const writeTimeout = 10 * time.Second

type Engine struct {
	Store  repo.Store
	Events events.Writer
	wg     sync.WaitGroup
}

func New(store repo.Store, ev events.Writer) *Engine {
	return &Engine{Store: store, Events: ev}
}

// TaskCreated propagates a new task's assignee to that user's pendingTasks.
// Fire-and-forget.
func (e *Engine) TaskCreated(t domain.Task) {
	e.applyMembershipsAsync(TaskMemberships(nil, &t), "task.created", t.ID.Hex())
}

// TaskReplaced moves the task between the old and new assignees'
// pendingTasks when the assignee changed. Fire-and-forget.
func (e *Engine) TaskReplaced(old, updated domain.Task) {
	e.applyMembershipsAsync(TaskMemberships(&old, &updated), "task.replaced", updated.ID.Hex())
}

// TaskDeleted removes the task from its assignee's pendingTasks.
// Fire-and-forget.
func (e *Engine) TaskDeleted(t domain.Task) {
	e.applyMembershipsAsync(TaskMemberships(&t, nil), "task.deleted", t.ID.Hex())
}

// UserCreated assigns every task in the new user's pendingTasks to that user.
// This is the one secondary write whose outcome the caller inspects: a
// failure keeps the 201 but changes the response message.
func (e *Engine) UserCreated(ctx context.Context, u domain.User) error {
	if len(u.PendingTasks) == 0 {
		return nil
	}
	err := e.Store.Tasks.AssignMany(ctx, u.PendingTasks, u.ID.Hex(), u.Name)
	if err != nil {
		e.Events.Append(ctx, "reconcile.failed", "user", u.ID.Hex(), events.Payload{
			"op":    "user.created",
			"error": err.Error(),
		})
	}
	return err
}

// UserReplaced applies the pendingTasks set difference: dropped tasks are
// unassigned, added tasks are assigned. Fire-and-forget.
func (e *Engine) UserReplaced(old, updated domain.User) {
	for _, a := range UserAssignments(&old, &updated) {
		a := a
		e.spawn(func(ctx context.Context) error {
			return e.applyAssignment(ctx, a)
		}, "user.replaced", updated.ID.Hex())
	}
}

// UserDeleted unassigns every task still pointing at the deleted user. The
// sweep is awaited — the delete response must not race it — but its failure
// is swallowed all the same.
func (e *Engine) UserDeleted(ctx context.Context, u domain.User) {
	if err := e.Store.Tasks.UnassignUser(ctx, u.ID.Hex()); err != nil {
		e.Events.Append(ctx, "reconcile.failed", "user", u.ID.Hex(), events.Payload{
			"op":    "user.deleted",
			"error": err.Error(),
		})
	}
}

// Wait blocks until all detached writes issued so far have finished. Used by
// tests and by server shutdown; the request path never calls it.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) applyMembershipsAsync(memberships []Membership, op, entityID string) {
	for _, m := range memberships {
		m := m
		e.spawn(func(ctx context.Context) error {
			return e.applyMembership(ctx, m)
		}, op, entityID)
	}
}

func (e *Engine) applyMembership(ctx context.Context, m Membership) error {
	for _, taskID := range m.Remove {
		if err := e.Store.Users.RemovePendingTask(ctx, m.UserID, taskID); err != nil {
			return err
		}
	}
	for _, taskID := range m.Add {
		if err := e.Store.Users.AddPendingTask(ctx, m.UserID, taskID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyAssignment(ctx context.Context, a Assignment) error {
	if a.UserID == "" {
		return e.Store.Tasks.UnassignMany(ctx, a.TaskIDs)
	}
	return e.Store.Tasks.AssignMany(ctx, a.TaskIDs, a.UserID, a.UserName)
}

// spawn runs a secondary write detached from the request. Failures are
// recorded and dropped.
func (e *Engine) spawn(fn func(context.Context) error, op, entityID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.Events.Append(ctx, "reconcile.failed", "task", entityID, events.Payload{
				"op":    op,
				"error": err.Error(),
			})
		}
	}()
}
