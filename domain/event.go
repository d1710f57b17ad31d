package domain

import "time"

// CalendarEvent is a dated entry on the dashboard calendar.
type CalendarEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	When      time.Time `json:"when"`
	CreatedAt time.Time `json:"createdAt"`
}
