package leader

import (
	"encoding/json"
	"time"
)

// Progress is the leader partition's progress state.
type Progress struct {
	// Initialized is set once Tasks.Initialize succeeded and was persisted.
	Initialized bool `json:"initialized"`

	// LastCheckedAt is the start of the last tick whose work was persisted.
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

// Encode returns the JSON form stored in the leader partition.
func (p Progress) Encode() []byte {
	// Marshalling a bool and a time.Time cannot fail.
	data, _ := json.Marshal(p)

	return data
}

// DecodeProgress parses a leader progress blob.
//
// Returns:
//   - Progress: Parsed progress, zero value when data is empty or malformed
//   - bool: false when data was malformed
func DecodeProgress(data []byte) (Progress, bool) {
	var p Progress
	if len(data) == 0 {
		return p, true
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, false
	}

	return p, true
}
