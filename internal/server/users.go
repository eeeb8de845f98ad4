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

func registerUsers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *listParams) (*struct {
		Body listEnvelope `json:"body"`
	}, error) {
		// No default limit on users.
		opts, err := query.Parse(query.Params{
			Where:  input.Where,
			Select: input.Select,
			Sort:   input.Sort,
			Skip:   input.Skip,
			Limit:  input.Limit,
			Count:  input.Count,
		}, 0)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, err.Error())
		}
		var data any
		if opts.Count {
			n, err := e.Store.Users.Count(ctx, opts.Filter)
			if err != nil {
				return nil, newAPIError(http.StatusInternalServerError, "Error counting users")
			}
			data = n
		} else {
			docs, err := e.Store.Users.Find(ctx, opts)
			if err != nil {
				return nil, newAPIError(http.StatusInternalServerError, "Error retrieving users")
			}
			data = docs
		}
		return &struct {
			Body listEnvelope `json:"body"`
		}{Body: listEnvelope{Message: "OK", Data: data}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body UserRequest `json:"body"`
	}) (*struct {
		Body userEnvelope `json:"body"`
	}, error) {
		if input.Body.Name == "" || input.Body.Email == "" {
			return nil, newAPIError(http.StatusBadRequest, "Name and email are required")
		}
		u := domain.User{
			Name:         input.Body.Name,
			Email:        input.Body.Email,
			PendingTasks: input.Body.PendingTasks,
		}
		created, err := e.Store.Users.Insert(ctx, u)
		if err != nil {
			return nil, mapError(err, "User not found", "Error creating user")
		}
		// Awaited on purpose: the response message depends on the outcome,
		// but the status stays 201 either way.
		message := "User created successfully"
		if err := e.UserCreated(ctx, created); err != nil {
			message = "User created but task assignment failed"
		}
		return &struct {
			Body userEnvelope `json:"body"`
		}{Body: userEnvelope{Message: message, Data: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
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
			return nil, newAPIError(http.StatusNotFound, "User not found")
		}
		doc, err := e.Store.Users.FindByID(ctx, oid, projection)
		if err != nil {
			return nil, mapError(err, "User not found", "Error retrieving user")
		}
		return &struct {
			Body docEnvelope `json:"body"`
		}{Body: docEnvelope{Message: "OK", Data: doc}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-user",
		Method:      http.MethodPut,
		Path:        "/users/{id}",
		Summary:     "Replace user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body UserRequest `json:"body"`
	}) (*struct {
		Body userEnvelope `json:"body"`
	}, error) {
		if input.Body.Name == "" || input.Body.Email == "" {
			return nil, newAPIError(http.StatusBadRequest, "Name and email are required")
		}
		oid, err := primitive.ObjectIDFromHex(input.ID)
		if err != nil {
			return nil, newAPIError(http.StatusNotFound, "User not found")
		}
		old, err := e.Store.Users.Get(ctx, oid)
		if err != nil {
			return nil, mapError(err, "User not found", "Error retrieving user")
		}
		updated := domain.User{
			ID:           old.ID,
			Name:         input.Body.Name,
			Email:        input.Body.Email,
			PendingTasks: input.Body.PendingTasks,
			DateCreated:  old.DateCreated,
		}
		if updated.PendingTasks == nil {
			updated.PendingTasks = []string{}
		}
		if err := e.Store.Users.Replace(ctx, updated); err != nil {
			return nil, mapError(err, "User not found", "Error updating user")
		}
		e.UserReplaced(old, updated)
		return &struct {
			Body userEnvelope `json:"body"`
		}{Body: userEnvelope{Message: "User updated successfully", Data: updated}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/users/{id}",
		Summary:     "Delete user",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body userEnvelope `json:"body"`
	}, error) {
		oid, err := primitive.ObjectIDFromHex(input.ID)
		if err != nil {
			return nil, newAPIError(http.StatusNotFound, "User not found")
		}
		u, err := e.Store.Users.Get(ctx, oid)
		if err != nil {
			return nil, mapError(err, "User not found", "Error deleting user")
		}
		if err := e.Store.Users.Delete(ctx, oid); err != nil {
			return nil, mapError(err, "User not found", "Error deleting user")
		}
		// The unassignment sweep completes before the response goes out.
		e.UserDeleted(ctx, u)
		return &struct {
			Body userEnvelope `json:"body"`
		}{Body: userEnvelope{Message: "User deleted successfully", Data: u}}, nil
	})
}
