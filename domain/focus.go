package domain

import "time"

// FocusSession records one completed focus-timer run.
type FocusSession struct {
	ID        string    `json:"id"`
	Minutes   int       `json:"minutes"`
	CreatedAt time.Time `json:"createdAt"`
}
