// Package server exposes the task/user REST API. Every response, success or
// error, uses the {message, data} envelope.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/engine"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/query"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
}

// apiError models the error half of the envelope. huma marshals the error
// value itself, so the exported fields are the response body.
type apiError struct {
	status  int
	Message string   `json:"message"`
	Data    struct{} `json:"data"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Message: message}
}

// New returns an HTTP handler exposing the API under BasePath (default /api).
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	// Route every huma-generated error through the envelope; schema
	// validation failures count as client errors, not 422s.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	router.Use(requestID)
	router.Use(recoverer)

	hcfg := huma.DefaultConfig("Task API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerTasks(group, cfg.Engine)
	registerUsers(group, cfg.Engine)

	return router, nil
}

// mapError translates storage errors into envelope responses. notFound and
// internal carry the operation-specific message texts.
func mapError(err error, notFound, internal string) huma.StatusError {
	var mp query.MalformedParamError
	switch {
	case errors.As(err, &mp):
		return newAPIError(http.StatusBadRequest, mp.Error())
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, notFound)
	case errors.Is(err, repo.ErrDuplicateEmail):
		return newAPIError(http.StatusBadRequest, "User with this email already exists")
	default:
		return newAPIError(http.StatusInternalServerError, internal)
	}
}

// requestID tags each request for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// recoverer is the last-resort backstop: any panic in a handler becomes the
// generic 500 envelope instead of a dropped connection.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic: %s %s: %v", r.Method, r.URL.Path, rec)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"message": "Server error",
					"data":    struct{}{},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
