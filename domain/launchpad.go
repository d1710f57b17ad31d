package domain

import "time"

// Limits enforced by handlers when creating or editing launchpad items.
const (
	LaunchpadNameMax        = 80
	LaunchpadDescriptionMax = 280
)

// LaunchpadItem is a launchable shortcut tile. URL is unique across the
// collection and restricted to http/https; LaunchCount never decreases.
type LaunchpadItem struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	Description    string     `json:"description"`
	Enabled        bool       `json:"enabled"`
	LaunchCount    int        `json:"launchCount"`
	LastLaunchedAt *time.Time `json:"lastLaunchedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
