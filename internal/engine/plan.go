package engine

import "github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"

// The planner is a pure function of (old state, new state): it computes the
// compensating writes the paired collection needs, and nothing else. The
// executor in engine.go decides how (and whether to wait for) each write.

// Membership is a pendingTasks delta for one user.
type Membership struct {
	UserID string
	Add    []string
	Remove []string
}

// Assignment is a bulk task update. An empty UserID unassigns.
type Assignment struct {
	TaskIDs  []string
	UserID   string
	UserName string
}

// TaskMemberships returns the pendingTasks changes implied by a task
// transition. Nil old means creation, nil updated means deletion. A
// same-assignee replacement yields nothing.
func TaskMemberships(old, updated *domain.Task) []Membership {
	var oldAssignee, newAssignee string
	if old != nil {
		oldAssignee = old.AssignedUser
	}
	if updated != nil {
		newAssignee = updated.AssignedUser
	}
	if oldAssignee == newAssignee {
		return nil
	}
	var out []Membership
	if oldAssignee != "" {
		out = append(out, Membership{UserID: oldAssignee, Remove: []string{old.ID.Hex()}})
	}
	if newAssignee != "" {
		out = append(out, Membership{UserID: newAssignee, Add: []string{updated.ID.Hex()}})
	}
	return out
}

// UserAssignments returns the bulk task updates implied by a user
// replacement: tasks dropped from pendingTasks are unassigned, tasks added
// are assigned, tasks present in both are untouched.
func UserAssignments(old, updated *domain.User) []Assignment {
	var oldPending, newPending []string
	if old != nil {
		oldPending = old.PendingTasks
	}
	if updated != nil {
		newPending = updated.PendingTasks
	}
	var out []Assignment
	if dropped := difference(oldPending, newPending); len(dropped) > 0 {
		out = append(out, Assignment{TaskIDs: dropped, UserName: domain.UnassignedName})
	}
	if added := difference(newPending, oldPending); len(added) > 0 && updated != nil {
		out = append(out, Assignment{TaskIDs: added, UserID: updated.ID.Hex(), UserName: updated.Name})
	}
	return out
}

// difference returns the elements of a not present in b, preserving order.
func difference(a, b []string) []string {
	if len(a) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(b))
	for _, id := range b {
		seen[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
