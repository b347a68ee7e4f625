package weerlive

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Upstream field names inside the first element of the liveweer array.
const (
	FieldTemperature   = "temp"
	FieldFeelsLike     = "gtemp"
	FieldWindSpeed     = "windkmh"
	FieldWindDirection = "windr"
)

// Snapshot is the most recent successfully parsed payload together with the
// time it was fetched. A Snapshot is never mutated after construction; a new
// refresh produces a new value.
type Snapshot struct {
	// Fields holds every field of the upstream record. Numbers are kept as
	// json.Number, everything else as decoded by encoding/json.
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a copy whose Fields map can be modified freely.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Fields:    maps.Clone(s.Fields),
		UpdatedAt: s.UpdatedAt,
	}
}

// Float reads field as a floating point number. Weerlive sends numbers as
// strings ("18.3"), plain JSON numbers are accepted as well.
func (s Snapshot) Float(field string) (float64, error) {
	raw, ok := s.Fields[field]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: field %q missing", ErrParse, field)
	}

	switch v := raw.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q is not numeric: %q", ErrParse, field, v)
		}
		return f, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", ErrParse, field, err)
		}
		return f, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: field %q has unexpected type %T", ErrParse, field, raw)
	}
}

// Text reads field as text, unchanged.
func (s Snapshot) Text(field string) (string, error) {
	raw, ok := s.Fields[field]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: field %q missing", ErrParse, field)
	}

	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: field %q has unexpected type %T", ErrParse, field, raw)
	}
}
