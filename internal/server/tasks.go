package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/engine"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/query"
)

// Task lists cap at 100 documents unless the client asks otherwise; user
// lists are unbounded.
const defaultTaskLimit = 100

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *listParams) (*struct {
		Body listEnvelope `json:"body"`
	}, error) {
		opts, err := query.Parse(query.Params{
			Where:  input.Where,
			Select: input.Select,
			Sort:   input.Sort,
			Skip:   input.Skip,
			Limit:  input.Limit,
			Count:  input.Count,
		}, defaultTaskLimit)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, err.Error())
		}
		var data any
		if opts.Count {
			n, err := e.Store.Tasks.Count(ctx, opts.Filter)
			if err != nil {
				return nil, newAPIError(http.StatusInternalServerError, "Error counting tasks")
			}
			data = n
		} else {
			docs, err := e.Store.Tasks.Find(ctx, opts)
			if err != nil {
				return nil, newAPIError(http.StatusInternalServerError, "Error retrieving tasks")
			}
			data = docs
		}
		return &struct {
			Body listEnvelope `json:"body"`
		}{Body: listEnvelope{Message: "OK", Data: data}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body TaskRequest `json:"body"`
	}) (*struct {
		Body taskEnvelope `json:"body"`
	}, error) {
		t, apiErr := taskFromRequest(input.Body)
		if apiErr != nil {
			return nil, apiErr
		}
		created, err := e.Store.Tasks.Insert(ctx, t)
		if err != nil {
			return nil, mapError(err, "Task not found", "Error creating task")
		}
		e.TaskCreated(created)
		return &struct {
			Body taskEnvelope `json:"body"`
		}{Body: taskEnvelope{Message: "Task created successfully", Data: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Select string `query:"select"`
	}) (*struct {
		Body docEnvelope `json:"body"`
	}, error) {
		var projection bson.M
		if input.Select != "" {
			var err error
			projection, err = query.ParseProjection(input.Select)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, err.Error())
			}
		}
		oid, err := primitive.ObjectIDFromHex(input.ID)
		if err != nil {
			return nil, newAPIError(http.StatusNotFound, "Task not found")
		}
		doc, err := e.Store.Tasks.FindByID(ctx, oid, projection)
		if err != nil {
			return nil, mapError(err, "Task not found", "Error retrieving task")
		}
		return &struct {
			Body docEnvelope `json:"body"`
		}{Body: docEnvelope{Message: "OK", Data: doc}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Replace task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TaskRequest `json:"body"`
	}) (*struct {
		Body taskEnvelope `json:"body"`
	}, error) {
		replacement, apiErr := taskFromRequest(input.Body)
		if apiErr != nil {
			return nil, apiErr
		}
		oid, err := primitive.ObjectIDFromHex(input.ID)
		if err != nil {
			return nil, newAPIError(http.StatusNotFound, "Task not found")
		}
		old, err := e.Store.Tasks.Get(ctx, oid)
		if err != nil {
			return nil, mapError(err, "Task not found", "Error retrieving task")
		}
		// Full replacement: every client field overwrites; only identity and
		// creation time survive.
		replacement.ID = old.ID
		replacement.DateCreated = old.DateCreated
		if err := e.Store.Tasks.Replace(ctx, replacement); err != nil {
			return nil, mapError(err, "Task not found", "Error updating task")
		}
		e.TaskReplaced(old, replacement)
		return &struct {
			Body taskEnvelope `json:"body"`
		}{Body: taskEnvelope{Message: "Task updated successfully", Data: replacement}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body taskEnvelope `json:"body"`
	}, error) {
		oid, err := primitive.ObjectIDFromHex(input.ID)
		if err != nil {
			return nil, newAPIError(http.StatusNotFound, "Task not found")
		}
		t, err := e.Store.Tasks.Get(ctx, oid)
		if err != nil {
			return nil, mapError(err, "Task not found", "Error deleting task")
		}
		if err := e.Store.Tasks.Delete(ctx, oid); err != nil {
			return nil, mapError(err, "Task not found", "Error deleting task")
		}
		e.TaskDeleted(t)
		return &struct {
			Body taskEnvelope `json:"body"`
		}{Body: taskEnvelope{Message: "Task deleted successfully", Data: t}}, nil
	})
}

func taskFromRequest(req TaskRequest) (domain.Task, huma.StatusError) {
	if req.Name == "" || req.Deadline == nil {
		return domain.Task{}, newAPIError(http.StatusBadRequest, "Name and deadline are required")
	}
	deadline, ok := parseDeadline(req.Deadline)
	if !ok {
		return domain.Task{}, newAPIError(http.StatusBadRequest, "Invalid 'deadline' value")
	}
	t := domain.Task{
		Name:             req.Name,
		Description:      req.Description,
		Deadline:         deadline,
		AssignedUser:     req.AssignedUser,
		AssignedUserName: req.AssignedUserName,
	}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
	if t.AssignedUserName == "" {
		t.AssignedUserName = domain.UnassignedName
	}
	return t, nil
}
