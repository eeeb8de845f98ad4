package engine

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"
)

func task(id primitive.ObjectID, assignee string) domain.Task {
	return domain.Task{ID: id, Name: "t", AssignedUser: assignee}
}

func TestTaskMembershipsCreate(t *testing.T) {
	id := primitive.NewObjectID()
	created := task(id, "user-a")
	got := TaskMemberships(nil, &created)
	want := []Membership{{UserID: "user-a", Add: []string{id.Hex()}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	unassigned := task(id, "")
	if got := TaskMemberships(nil, &unassigned); got != nil {
		t.Fatalf("unassigned creation should plan nothing, got %+v", got)
	}
}

func TestTaskMembershipsReplace(t *testing.T) {
	id := primitive.NewObjectID()
	a := task(id, "user-a")
	b := task(id, "user-b")
	got := TaskMemberships(&a, &b)
	want := []Membership{
		{UserID: "user-a", Remove: []string{id.Hex()}},
		{UserID: "user-b", Add: []string{id.Hex()}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	// Same assignee: no reconciliation at all.
	if got := TaskMemberships(&a, &a); got != nil {
		t.Fatalf("same assignee should plan nothing, got %+v", got)
	}

	// A -> unassigned: removal only.
	empty := task(id, "")
	got = TaskMemberships(&a, &empty)
	want = []Membership{{UserID: "user-a", Remove: []string{id.Hex()}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestTaskMembershipsDelete(t *testing.T) {
	id := primitive.NewObjectID()
	assigned := task(id, "user-a")
	got := TaskMemberships(&assigned, nil)
	want := []Membership{{UserID: "user-a", Remove: []string{id.Hex()}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	unassigned := task(id, "")
	if got := TaskMemberships(&unassigned, nil); got != nil {
		t.Fatalf("unassigned deletion should plan nothing, got %+v", got)
	}
}

func TestUserAssignmentsDiff(t *testing.T) {
	uid := primitive.NewObjectID()
	old := domain.User{ID: uid, Name: "Bob", PendingTasks: []string{"t1", "t2", "t3"}}
	updated := domain.User{ID: uid, Name: "Bob", PendingTasks: []string{"t2", "t4"}}
	got := UserAssignments(&old, &updated)
	want := []Assignment{
		{TaskIDs: []string{"t1", "t3"}, UserName: domain.UnassignedName},
		{TaskIDs: []string{"t4"}, UserID: uid.Hex(), UserName: "Bob"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestUserAssignmentsUnchanged(t *testing.T) {
	uid := primitive.NewObjectID()
	u := domain.User{ID: uid, Name: "Bob", PendingTasks: []string{"t1", "t2"}}
	if got := UserAssignments(&u, &u); got != nil {
		t.Fatalf("identical pendingTasks should plan nothing, got %+v", got)
	}
}
