package domain

import "time"

// Journal is a free-form journal entry.
type Journal struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
