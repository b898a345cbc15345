// Package community provides the community registry cache: a versioned,
// last-write-wins collection of community records that residents searched for
// or selected, persisted as a single JSON document in a key/value store.
package community

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the version written into every persisted registry.
const SchemaVersion = 1

// Default field values.
const (
	DefaultSource = "community-request"
	DefaultStatus = ""
)

// TimestampLayout is the ISO-8601 layout used for all record timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is a single community tracked by the registry.
// Nullable numeric fields are nil when unknown; they are never NaN or Inf.
type Record struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	Commune    string `json:"commune"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	TowerLabel string `json:"towerLabel"`

	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Floors     *float64 `json:"floors"`
	UnitsCount *float64 `json:"unitsCount"`

	Source string `json:"source"`
	Status string `json:"status"`

	Submissions    int `json:"submissions"`
	SelectionCount int `json:"selectionCount"`

	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
	LastSelectedAt *string `json:"lastSelectedAt"`
}

// Mapped reports whether both coordinates are known.
func (r Record) Mapped() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// clone returns a copy that shares no pointers with r.
func (r Record) clone() Record {
	out := r
	out.Latitude = copyFloat(r.Latitude)
	out.Longitude = copyFloat(r.Longitude)
	out.Floors = copyFloat(r.Floors)
	out.UnitsCount = copyFloat(r.UnitsCount)
	if r.LastSelectedAt != nil {
		ts := *r.LastSelectedAt
		out.LastSelectedAt = &ts
	}
	return out
}

// sortTime returns the instant used to order records: updatedAt, then
// createdAt, then the Unix epoch when neither parses.
func (r Record) sortTime() time.Time {
	if t, ok := parseTimestamp(r.UpdatedAt); ok {
		return t
	}
	if t, ok := parseTimestamp(r.CreatedAt); ok {
		return t
	}
	return time.Unix(0, 0)
}

// Registry document as persisted under the storage key.
type document struct {
	Version     int      `json:"version"`
	Communities []Record `json:"communities"`
}

// Input is a partial community payload. Nil string pointers and numbers
// without Present set are treated as absent and fall back to the stored
// record or the field default.
type Input struct {
	ID         *string `json:"id,omitempty"`
	Name       *string `json:"name,omitempty"`
	Address    *string `json:"address,omitempty"`
	Commune    *string `json:"commune,omitempty"`
	City       *string `json:"city,omitempty"`
	PostalCode *string `json:"postalCode,omitempty"`
	TowerLabel *string `json:"towerLabel,omitempty"`

	Latitude   Number `json:"latitude"`
	Longitude  Number `json:"longitude"`
	Floors     Number `json:"floors"`
	UnitsCount Number `json:"unitsCount"`

	Source *string `json:"source,omitempty"`
	Status *string `json:"status,omitempty"`
}

// Number is an optional, lenient numeric input. It accepts JSON numbers and
// numeric strings; anything else that is present coerces to a nil Value.
type Number struct {
	Present bool
	Value   *float64
}

// Float returns a present Number holding v. Non-finite values coerce to nil.
func Float(v float64) Number {
	return Number{Present: true, Value: finite(v)}
}

// Null returns a present Number that clears the stored value.
func Null() Number {
	return Number{Present: true}
}

// UnmarshalJSON implements json.Unmarshaler. JSON null leaves the number absent.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	*n = Number{Present: true, Value: looseFloat(data)}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// String returns a pointer to s, for building Input values.
func String(s string) *string {
	return &s
}

// looseFloat decodes a raw JSON value into a finite float, or nil.
func looseFloat(raw []byte) *float64 {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return finite(v)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return finite(v)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
