package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/query"
)

// NewMem returns a Store backed by process memory. It exists for demo mode
// (serve --demo) and for tests, where a real Mongo instance is not available.
// Filters support the operator subset the API itself exercises: field
// equality (including array containment), $in, $ne, $gt/$gte/$lt/$lte,
// $exists, and $or/$and branches.
func NewMem() Store {
	s := &memStore{
		tasks: map[primitive.ObjectID]domain.Task{},
		users: map[primitive.ObjectID]domain.User{},
	}
	return Store{Tasks: memTasks{s: s}, Users: memUsers{s: s}}
}

type memStore struct {
	mu    sync.Mutex
	tasks map[primitive.ObjectID]domain.Task
	users map[primitive.ObjectID]domain.User
}

type memTasks struct {
	s *memStore
}

func (r memTasks) Find(_ context.Context, opts query.Options) ([]bson.M, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	docs := make([]bson.M, 0, len(r.s.tasks))
	for _, t := range r.s.tasks {
		docs = append(docs, toDoc(t))
	}
	return applyOptions(docs, opts), nil
}

func (r memTasks) Count(_ context.Context, filter bson.M) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.tasks {
		if matchDoc(toDoc(t), filter) {
			n++
		}
	}
	return n, nil
}

func (r memTasks) FindByID(_ context.Context, id primitive.ObjectID, projection bson.M) (bson.M, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return project(toDoc(t), projection), nil
}

func (r memTasks) Get(_ context.Context, id primitive.ObjectID) (domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (r memTasks) Insert(_ context.Context, t domain.Task) (domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if t.DateCreated.IsZero() {
		t.DateCreated = time.Now().UTC()
	}
	r.s.tasks[t.ID] = t
	return t, nil
}

func (r memTasks) Replace(_ context.Context, t domain.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	r.s.tasks[t.ID] = t
	return nil
}

func (r memTasks) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

func (r memTasks) AssignMany(_ context.Context, taskIDs []string, userID, userName string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range taskIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		if t, ok := r.s.tasks[oid]; ok {
			t.AssignedUser = userID
			t.AssignedUserName = userName
			r.s.tasks[oid] = t
		}
	}
	return nil
}

func (r memTasks) UnassignMany(_ context.Context, taskIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range taskIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		if t, ok := r.s.tasks[oid]; ok {
			t.AssignedUser = ""
			t.AssignedUserName = domain.UnassignedName
			r.s.tasks[oid] = t
		}
	}
	return nil
}

func (r memTasks) UnassignUser(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.tasks {
		if t.AssignedUser == userID {
			t.AssignedUser = ""
			t.AssignedUserName = domain.UnassignedName
			r.s.tasks[id] = t
		}
	}
	return nil
}

type memUsers struct {
	s *memStore
}

func (r memUsers) Find(_ context.Context, opts query.Options) ([]bson.M, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	docs := make([]bson.M, 0, len(r.s.users))
	for _, u := range r.s.users {
		docs = append(docs, toDoc(u))
	}
	return applyOptions(docs, opts), nil
}

func (r memUsers) Count(_ context.Context, filter bson.M) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, u := range r.s.users {
		if matchDoc(toDoc(u), filter) {
			n++
		}
	}
	return n, nil
}

func (r memUsers) FindByID(_ context.Context, id primitive.ObjectID, projection bson.M) (bson.M, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return project(toDoc(u), projection), nil
}

func (r memUsers) Get(_ context.Context, id primitive.ObjectID) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	// Snapshot the slice so later membership writes cannot reach into a copy
	// a caller already holds.
	u.PendingTasks = append([]string(nil), u.PendingTasks...)
	return u, nil
}

func (r memUsers) Insert(_ context.Context, u domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return u, ErrDuplicateEmail
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.DateCreated.IsZero() {
		u.DateCreated = time.Now().UTC()
	}
	if u.PendingTasks == nil {
		u.PendingTasks = []string{}
	}
	r.s.users[u.ID] = u
	return u, nil
}

func (r memUsers) Replace(_ context.Context, u domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range r.s.users {
		if id != u.ID && existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	if u.PendingTasks == nil {
		u.PendingTasks = []string{}
	}
	r.s.users[u.ID] = u
	return nil
}

func (r memUsers) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r memUsers) AddPendingTask(_ context.Context, userID, taskID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	u, ok := r.s.users[oid]
	if !ok {
		return nil
	}
	for _, existing := range u.PendingTasks {
		if existing == taskID {
			return nil
		}
	}
	u.PendingTasks = append(u.PendingTasks, taskID)
	r.s.users[oid] = u
	return nil
}

func (r memUsers) RemovePendingTask(_ context.Context, userID, taskID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	u, ok := r.s.users[oid]
	if !ok {
		return nil
	}
	kept := make([]string, 0, len(u.PendingTasks))
	for _, existing := range u.PendingTasks {
		if existing != taskID {
			kept = append(kept, existing)
		}
	}
	u.PendingTasks = kept
	r.s.users[oid] = u
	return nil
}

// toDoc round-trips a typed document through bson so the mem store hands out
// the same shapes the driver would (DateTime, primitive.A, ObjectID).
func toDoc(v any) bson.M {
	raw, err := bson.Marshal(v)
	if err != nil {
		return bson.M{}
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return bson.M{}
	}
	return doc
}

func applyOptions(docs []bson.M, opts query.Options) []bson.M {
	matched := []bson.M{}
	for _, doc := range docs {
		if matchDoc(doc, opts.Filter) {
			matched = append(matched, doc)
		}
	}
	if len(opts.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, key := range opts.Sort {
				dir := 1
				if n, ok := toFloat(key.Value); ok && n < 0 {
					dir = -1
				}
				c := compareValues(matched[i][key.Key], matched[j][key.Key])
				if c != 0 {
					return c*dir < 0
				}
			}
			return false
		})
	} else {
		// Deterministic default order for tests: insertion order is not
		// tracked, so fall back to _id.
		sort.SliceStable(matched, func(i, j int) bool {
			return compareValues(matched[i]["_id"], matched[j]["_id"]) < 0
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matched)) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	// limit 0 means unbounded, as the driver treats it.
	if opts.HasLimit && opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	out := make([]bson.M, len(matched))
	for i, doc := range matched {
		out[i] = project(doc, opts.Projection)
	}
	return out
}

func matchDoc(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$or":
			if !matchBranches(doc, cond, false) {
				return false
			}
		case "$and":
			if !matchBranches(doc, cond, true) {
				return false
			}
		default:
			if !matchField(doc[key], cond) {
				return false
			}
		}
	}
	return true
}

func matchBranches(doc bson.M, cond any, all bool) bool {
	branches, ok := cond.([]any)
	if !ok {
		return false
	}
	for _, branch := range branches {
		sub, ok := branch.(map[string]any)
		if !ok {
			return false
		}
		matched := matchDoc(doc, bson.M(sub))
		if matched && !all {
			return true
		}
		if !matched && all {
			return false
		}
	}
	return all
}

func matchField(value any, cond any) bool {
	if ops, ok := cond.(map[string]any); ok && hasOperator(ops) {
		for op, operand := range ops {
			if !matchOperator(value, op, operand) {
				return false
			}
		}
		return true
	}
	return valuesEqual(value, cond)
}

func matchOperator(value any, op string, operand any) bool {
	switch op {
	case "$in":
		list, ok := operand.([]any)
		if !ok {
			return false
		}
		for _, el := range list {
			if valuesEqual(value, el) {
				return true
			}
		}
		return false
	case "$ne":
		return !valuesEqual(value, operand)
	case "$exists":
		want, _ := operand.(bool)
		return (value != nil) == want
	case "$gt":
		return compareValues(value, operand) > 0
	case "$gte":
		return compareValues(value, operand) >= 0
	case "$lt":
		return compareValues(value, operand) < 0
	case "$lte":
		return compareValues(value, operand) <= 0
	default:
		return false
	}
}

func hasOperator(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func valuesEqual(value, cond any) bool {
	// Array containment: {"pendingTasks": "id"} matches an element.
	if arr, ok := value.(primitive.A); ok {
		for _, el := range arr {
			if valuesEqual(el, cond) {
				return true
			}
		}
		return false
	}
	if a, ok := toFloat(value); ok {
		if b, ok := toFloat(cond); ok {
			return a == b
		}
		return false
	}
	return value == cond
}

func compareValues(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, aok := stringKey(a)
	sb, bok := stringKey(b)
	if aok && bok {
		return strings.Compare(sa, sb)
	}
	return 0
}

func stringKey(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case primitive.ObjectID:
		return t.Hex(), true
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case primitive.DateTime:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func project(doc bson.M, projection bson.M) bson.M {
	if len(projection) == 0 {
		return doc
	}
	include := false
	hasOther := false
	for key, v := range projection {
		if key == "_id" {
			continue
		}
		hasOther = true
		if truthy(v) {
			include = true
		}
	}
	// A projection of _id alone picks the mode by its value.
	if !hasOther && truthy(projection["_id"]) {
		include = true
	}
	out := bson.M{}
	if include {
		for key, v := range projection {
			if !truthy(v) {
				continue
			}
			if val, ok := doc[key]; ok {
				out[key] = val
			}
		}
		if idSpec, ok := projection["_id"]; !ok || truthy(idSpec) {
			out["_id"] = doc["_id"]
		}
		return out
	}
	for key, val := range doc {
		if v, ok := projection[key]; ok && !truthy(v) {
			continue
		}
		out[key] = val
	}
	return out
}

func truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return false
}
