package storage

import (
	"encoding/json"
	"time"

	"github.com/garyellow/osvita-occupancy/internal/occupancy"
)

// Occupancy is a stored scan result for one date.
type Occupancy struct {
	Date      string             `json:"date"`
	ScanID    string             `json:"scan_id,omitempty"`
	Rooms     occupancy.Snapshot `json:"results"`
	StoredAt  time.Time          `json:"stored_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Links maps a schedule entry key to an arbitrary JSON value set by the admin.
type Links map[string]json.RawMessage

// Times is the admin-defined pair timetable, kept as an opaque JSON object.
type Times json.RawMessage

// MarshalJSON writes an empty object for empty Times.
func (t Times) MarshalJSON() ([]byte, error) {
	if len(t) == 0 {
		return []byte("{}"), nil
	}
	return json.RawMessage(t).MarshalJSON()
}

// UnmarshalJSON keeps the raw value.
func (t *Times) UnmarshalJSON(data []byte) error {
	*t = append((*t)[:0], data...)
	return nil
}
