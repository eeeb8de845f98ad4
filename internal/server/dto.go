package server

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/domain"
)

// Request payloads. Required-field checks happen in the handlers so the
// responses carry the documented messages, not schema-validator text.

type TaskRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	// Deadline accepts RFC3339, date-only, and epoch seconds/milliseconds;
	// the seeding script posts raw Unix timestamps.
	Deadline         any    `json:"deadline,omitempty"`
	Completed        *bool  `json:"completed,omitempty"`
	AssignedUser     string `json:"assignedUser,omitempty"`
	AssignedUserName string `json:"assignedUserName,omitempty"`
}

type UserRequest struct {
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	PendingTasks []string `json:"pendingTasks,omitempty"`
}

// listParams are the raw translator inputs, shared by both list endpoints.
type listParams struct {
	Where  string `query:"where"`
	Select string `query:"select"`
	Sort   string `query:"sort"`
	Skip   string `query:"skip"`
	Limit  string `query:"limit"`
	Count  string `query:"count"`
}

// Response envelopes.

type taskEnvelope struct {
	Message string      `json:"message"`
	Data    domain.Task `json:"data"`
}

type userEnvelope struct {
	Message string      `json:"message"`
	Data    domain.User `json:"data"`
}

type docEnvelope struct {
	Message string `json:"message"`
	Data    bson.M `json:"data"`
}

// listEnvelope carries either a document list or a count.
type listEnvelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC1123,
}

func parseDeadline(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		for _, layout := range deadlineLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return fromEpoch(f), true
		}
	case float64:
		return fromEpoch(t), true
	}
	return time.Time{}, false
}

func fromEpoch(v float64) time.Time {
	// Values past the year ~33658 in seconds are taken as milliseconds.
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Unix(int64(v), 0).UTC()
}
