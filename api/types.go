package api

import (
	"context"

	"alcove-api/domain"
	"alcove-api/storage"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Storage abstracts the document store for handlers. Both *storage.Store
// and its Redis cache wrapper satisfy it.
type Storage interface {
	Load(ctx context.Context) (*domain.Document, error)
	Update(ctx context.Context, mutate storage.Mutate) (storage.Outcome, error)
}

// Authenticator is implemented by types able to vet Authorization headers.
type Authenticator interface {
	VerifyAuthHeader(string) error
}

type createTaskRequest struct {
	Title    string `json:"title"`
	Priority string `json:"priority,omitempty"`
}

// patchTaskRequest uses pointers so "absent" and "set to zero value" stay
// distinguishable.
type patchTaskRequest struct {
	Title    *string `json:"title,omitempty"`
	Priority *string `json:"priority,omitempty"`
	Done     *bool   `json:"done,omitempty"`
}

type createFocusRequest struct {
	Minutes int `json:"minutes"`
}

type createJournalRequest struct {
	Text string `json:"text"`
}

type createEventRequest struct {
	Title string `json:"title"`
	When  string `json:"when"`
}

type createLaunchpadRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

type patchLaunchpadRequest struct {
	Name        *string `json:"name,omitempty"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
