package model

import "time"

// Material is a raw material tracked by the reconciliation service.
type Material struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Class     MaterialClass `json:"class"`
	CreatedAt time.Time     `json:"created_at"`
}
