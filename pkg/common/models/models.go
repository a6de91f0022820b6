package models

import "time"

// Event is the envelope published on the events topic after a committed write.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // <resource>.created, <resource>.updated, <resource>.deleted
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
