package community

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// errCorrupt marks a persisted payload that could not be read as a registry.
var errCorrupt = errors.New("corrupt registry payload")

// storedRecord mirrors Record with lenient field types so a single bad field
// does not discard the whole registry.
type storedRecord struct {
	ID         json.RawMessage `json:"id"`
	Name       json.RawMessage `json:"name"`
	Address    json.RawMessage `json:"address"`
	Commune    json.RawMessage `json:"commune"`
	City       json.RawMessage `json:"city"`
	PostalCode json.RawMessage `json:"postalCode"`
	TowerLabel json.RawMessage `json:"towerLabel"`

	Latitude   Number `json:"latitude"`
	Longitude  Number `json:"longitude"`
	Floors     Number `json:"floors"`
	UnitsCount Number `json:"unitsCount"`

	Source json.RawMessage `json:"source"`
	Status json.RawMessage `json:"status"`

	Submissions    Number `json:"submissions"`
	SelectionCount Number `json:"selectionCount"`

	CreatedAt      json.RawMessage `json:"createdAt"`
	UpdatedAt      json.RawMessage `json:"updatedAt"`
	LastSelectedAt json.RawMessage `json:"lastSelectedAt"`
}

// decodeRegistry parses a persisted payload. An empty payload is an empty
// registry; anything that is not an object with a communities array returns
// errCorrupt together with an empty slice.
func decodeRegistry(payload string) ([]Record, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &top); err != nil || top == nil {
		return nil, errCorrupt
	}

	raw, ok := top["communities"]
	if !ok {
		return nil, errCorrupt
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, errCorrupt
	}

	records := make([]Record, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		rec, ok := decodeRecord(item)
		if !ok || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(raw json.RawMessage) (Record, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Record{}, false
	}
	var s storedRecord
	if err := json.Unmarshal(raw, &s); err != nil {
		return Record{}, false
	}

	rec := Record{
		ID:         looseString(s.ID),
		Name:       looseString(s.Name),
		Address:    looseString(s.Address),
		Commune:    looseString(s.Commune),
		City:       looseString(s.City),
		PostalCode: looseString(s.PostalCode),
		TowerLabel: looseString(s.TowerLabel),
		Latitude:   s.Latitude.Value,
		Longitude:  s.Longitude.Value,
		Floors:     s.Floors.Value,
		UnitsCount: s.UnitsCount.Value,
		Source:     looseString(s.Source),
		Status:     looseString(s.Status),
		CreatedAt:  looseString(s.CreatedAt),
		UpdatedAt:  looseString(s.UpdatedAt),
	}
	if rec.ID == "" {
		return Record{}, false
	}
	if rec.Source == "" {
		rec.Source = DefaultSource
	}

	rec.Submissions = clampCount(s.Submissions.Value, 1)
	rec.SelectionCount = clampCount(s.SelectionCount.Value, 0)
	if ts := looseString(s.LastSelectedAt); ts != "" {
		rec.LastSelectedAt = &ts
	}
	return rec, true
}

// clampCount converts a stored counter to an int no lower than floor,
// saturating at math.MaxInt.
func clampCount(v *float64, floor int) int {
	switch {
	case v == nil || *v <= float64(floor):
		return floor
	case *v >= float64(math.MaxInt):
		return math.MaxInt
	}
	return int(*v)
}

// addCount adds two non-negative counters, saturating at math.MaxInt.
func addCount(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// looseString reads a JSON string or number as trimmed text; other values
// (null, objects, arrays, booleans) read as "".
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch {
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		return string(raw)
	default:
		return ""
	}
}

func encodeRegistry(records []Record) (string, error) {
	doc := document{Version: SchemaVersion, Communities: records}
	if doc.Communities == nil {
		doc.Communities = []Record{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
