package entity

import (
	"encoding/json"
	"time"
)

// Setting is a versioned JSON configuration record keyed by id.
type Setting struct {
	ID        string          `db:"id" json:"id"`
	Category  string          `db:"category" json:"category,omitempty"`
	Value     json.RawMessage `db:"value" json:"value"`
	Version   int64           `db:"version" json:"version"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
