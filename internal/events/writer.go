// Package events records reconciliation outcomes. Entries are audit data
// only: writing one can never fail a request, so errors degrade to the log.
package events

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Writer struct {
	// C is the events collection. Nil (demo mode, tests) means log-only.
	C   *mongo.Collection
	Now func() time.Time
}

type Payload map[string]any

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID string, payload Payload) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	if w.C == nil {
		log.Printf("event: %s %s/%s %v", evtType, entityKind, entityID, payload)
		return
	}
	entry := bson.M{
		"ts":         now().UTC(),
		"type":       evtType,
		"entityKind": entityKind,
		"entityId":   entityID,
		"payload":    bson.M(payload),
	}
	if _, err := w.C.InsertOne(ctx, entry); err != nil {
		log.Printf("event: append %s failed: %v", evtType, err)
	}
}
