// Package docvalue rewrites extended-JSON markers inside decoded documents into
// typed scalars before they are classified.
package docvalue

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MaxDepth bounds how many container levels Normalize descends. Values nested
// deeper are returned unchanged.
const MaxDepth = 32

const (
	markerObjectID = "$oid"
	markerDate     = "$date"
	markerLong     = "$numberLong"
)

// Normalize walks a document value tree of maps, sequences and scalars. An
// object holding only {"$oid": hex} becomes a bson.ObjectID, {"$date": ...}
// becomes a time.Time, and bson.DateTime values become time.Time. The input is
// never modified.
func Normalize(value any) any {
	return visit(value, 0)
}

func visit(value any, depth int) any {
	if depth > MaxDepth {
		return value
	}
	switch typed := value.(type) {
	case bson.D:
		if len(typed) == 1 {
			if rewritten, ok := rewriteMarker(typed[0].Key, typed[0].Value); ok {
				return rewritten
			}
		}
		out := make(bson.D, 0, len(typed))
		for _, elem := range typed {
			out = append(out, bson.E{Key: elem.Key, Value: visit(elem.Value, depth+1)})
		}
		return out
	case bson.M:
		return visitMap(map[string]any(typed), depth, func(m map[string]any) any { return bson.M(m) })
	case map[string]any:
		return visitMap(typed, depth, func(m map[string]any) any { return m })
	case bson.A:
		out := make(bson.A, 0, len(typed))
		for _, elem := range typed {
			out = append(out, visit(elem, depth+1))
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, elem := range typed {
			out = append(out, visit(elem, depth+1))
		}
		return out
	case bson.DateTime:
		return typed.Time().UTC()
	default:
		return value
	}
}

func visitMap(in map[string]any, depth int, wrap func(map[string]any) any) any {
	if len(in) == 1 {
		for key, value := range in {
			if rewritten, ok := rewriteMarker(key, value); ok {
				return rewritten
			}
		}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = visit(value, depth+1)
	}
	return wrap(out)
}

func rewriteMarker(key string, value any) (any, bool) {
	switch key {
	case markerObjectID:
		hex, ok := value.(string)
		if !ok {
			return nil, false
		}
		id, err := bson.ObjectIDFromHex(strings.TrimSpace(hex))
		if err != nil {
			return nil, false
		}
		return id, true
	case markerDate:
		return parseDate(value)
	default:
		return nil, false
	}
}

func parseDate(value any) (any, bool) {
	switch typed := value.(type) {
	case string:
		raw := strings.TrimSpace(typed)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.UTC(), true
			}
		}
		return nil, false
	case int64:
		return time.UnixMilli(typed).UTC(), true
	case int32:
		return time.UnixMilli(int64(typed)).UTC(), true
	case float64:
		return time.UnixMilli(int64(typed)).UTC(), true
	case bson.D:
		if len(typed) == 1 && typed[0].Key == markerLong {
			return parseLong(typed[0].Value)
		}
	case bson.M:
		if raw, ok := typed[markerLong]; ok && len(typed) == 1 {
			return parseLong(raw)
		}
	case map[string]any:
		if raw, ok := typed[markerLong]; ok && len(typed) == 1 {
			return parseLong(raw)
		}
	}
	return nil, false
}

func parseLong(value any) (any, bool) {
	raw, ok := value.(string)
	if !ok {
		return nil, false
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, false
	}
	return time.UnixMilli(millis).UTC(), true
}
