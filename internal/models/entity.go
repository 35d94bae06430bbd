package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Common entity fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldCreatedBy = "createdBy"
	FieldUpdatedAt = "updatedAt"
	FieldUpdatedBy = "updatedBy"
)

// Entity is one JSON record of any kind. Only the common fields are
// interpreted; everything else is carried through untouched.
type Entity map[string]any

// ID returns the entity id as a string, or "" when unset.
func (e Entity) ID() string {
	return e.Text(FieldID)
}

// Text returns the string form of field, or "" when it is absent.
func (e Entity) Text(field string) string {
	v, ok := e[field]
	if !ok {
		return ""
	}
	return textOf(v)
}

// Has reports whether field is set to a non-empty value.
func (e Entity) Has(field string) bool {
	return e.Text(field) != ""
}

// Clone returns a shallow copy of e.
func (e Entity) Clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Merge returns base with every field of patch overlaid. Fields missing
// from patch keep their base value.
func Merge(base, patch Entity) Entity {
	out := base.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// textOf renders a decoded JSON value the way a browser would stringify it
// for display: arrays as comma separated elements, objects as JSON.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any:
		parts := make([]string, len(t))
		for i, el := range t {
			parts[i] = textOf(el)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Matches reports whether any of fields contains query, ignoring case.
func (e Entity) Matches(query string, fields []string) bool {
	q := strings.ToLower(query)
	for _, f := range fields {
		v := e.Text(f)
		if v == "" {
			continue
		}
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}
