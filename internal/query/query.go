// Package query translates the raw list-request parameters
// (where/select/sort/skip/limit/count) into a store-ready descriptor.
// Parsing is pure: nothing here touches the store.
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Params are the raw, string-typed query parameters as they arrive on the
// request. Empty string means absent.
type Params struct {
	Where  string
	Select string
	Sort   string
	Skip   string
	Limit  string
	Count  string
}

// Options is the validated descriptor handed to the store.
type Options struct {
	Filter     bson.M
	Projection bson.M
	Sort       bson.D
	Skip       int64
	Limit      int64
	HasLimit   bool
	Count      bool
}

// MalformedParamError identifies which query parameter failed to parse.
type MalformedParamError struct {
	Param string
	JSON  bool
}

func (e MalformedParamError) Error() string {
	if e.JSON {
		return fmt.Sprintf("Invalid JSON in '%s' parameter", e.Param)
	}
	return fmt.Sprintf("Invalid '%s' parameter", e.Param)
}

// Parse builds an Options from raw parameters. defaultLimit applies when no
// limit parameter is present; zero means unbounded. When count is requested
// every parameter except where is ignored, so their values are never
// validated on that path.
func Parse(p Params, defaultLimit int64) (Options, error) {
	opts := Options{Filter: bson.M{}}
	if p.Where != "" {
		var filter bson.M
		if err := json.Unmarshal([]byte(p.Where), &filter); err != nil {
			return opts, MalformedParamError{Param: "where", JSON: true}
		}
		opts.Filter = normalizeIDs(filter)
	}
	if p.Count == "true" {
		opts.Count = true
		return opts, nil
	}
	if p.Select != "" {
		projection, err := ParseProjection(p.Select)
		if err != nil {
			return opts, err
		}
		opts.Projection = projection
	}
	if p.Sort != "" {
		sort, err := decodeOrderedDoc(p.Sort)
		if err != nil {
			return opts, MalformedParamError{Param: "sort", JSON: true}
		}
		opts.Sort = sort
	}
	if p.Skip != "" {
		skip, err := strconv.ParseInt(p.Skip, 10, 64)
		if err != nil || skip < 0 {
			return opts, MalformedParamError{Param: "skip"}
		}
		opts.Skip = skip
	}
	if p.Limit != "" {
		limit, err := strconv.ParseInt(p.Limit, 10, 64)
		if err != nil {
			return opts, MalformedParamError{Param: "limit"}
		}
		opts.Limit = limit
		opts.HasLimit = true
	} else if defaultLimit > 0 {
		opts.Limit = defaultLimit
		opts.HasLimit = true
	}
	return opts, nil
}

// ParseProjection parses a select parameter on its own; the get-by-id
// handlers accept select without the rest of the list parameters.
func ParseProjection(raw string) (bson.M, error) {
	var projection bson.M
	if err := json.Unmarshal([]byte(raw), &projection); err != nil {
		return nil, MalformedParamError{Param: "select", JSON: true}
	}
	return projection, nil
}

// decodeOrderedDoc decodes a JSON object into a bson.D, preserving key order.
// A map decode would scramble multi-key sorts.
func decodeOrderedDoc(raw string) (bson.D, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var doc bson.D
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		doc = append(doc, bson.E{Key: key, Value: coerceNumber(value)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after object")
	}
	return doc, nil
}

func coerceNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return v
}

// normalizeIDs rewrites hex strings in _id positions to ObjectIDs, matching
// the casting the store's own id type requires. Covers plain equality,
// operator documents ($in and friends), and $or/$and/$nor branches.
func normalizeIDs(filter bson.M) bson.M {
	for key, value := range filter {
		switch key {
		case "_id":
			filter[key] = normalizeIDValue(value)
		case "$or", "$and", "$nor":
			branches, ok := value.([]any)
			if !ok {
				continue
			}
			for i, branch := range branches {
				if sub, ok := branch.(map[string]any); ok {
					branches[i] = map[string]any(normalizeIDs(sub))
				}
			}
		}
	}
	return filter
}

func normalizeIDValue(value any) any {
	switch v := value.(type) {
	case string:
		if oid, err := primitive.ObjectIDFromHex(v); err == nil {
			return oid
		}
	case map[string]any:
		for op, operand := range v {
			switch o := operand.(type) {
			case string:
				if oid, err := primitive.ObjectIDFromHex(o); err == nil {
					v[op] = oid
				}
			case []any:
				for i, el := range o {
					if s, ok := el.(string); ok {
						if oid, err := primitive.ObjectIDFromHex(s); err == nil {
							o[i] = oid
						}
					}
				}
			}
		}
	}
	return value
}
