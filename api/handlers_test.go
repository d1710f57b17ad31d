package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"alcove-api/domain"
	"alcove-api/storage"
)

// mockStore applies mutations to an in-memory document so handler closures
// run against real state.
type mockStore struct {
	mu      sync.Mutex
	doc     *domain.Document
	loadErr error
	updErr  error
	updates int
}

func newMockStore() *mockStore {
	return &mockStore{doc: domain.NewDocument()}
}

func (m *mockStore) Load(context.Context) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.doc, nil
}

func (m *mockStore) Update(_ context.Context, mutate storage.Mutate) (storage.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updErr != nil {
		return storage.Outcome{}, m.updErr
	}
	m.updates++
	return mutate(m.doc), nil
}

type allowAuth struct{}

func (allowAuth) VerifyAuthHeader(string) error { return nil }

type denyAuth struct{}

func (denyAuth) VerifyAuthHeader(string) error { return errors.New("bad credentials") }

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateTask(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"Buy milk","priority":"high"}`)

	if err := createTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created domain.Task
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Title != "Buy milk" || created.Priority != domain.PriorityHigh || created.Done {
		t.Fatalf("unexpected task: %#v", created)
	}
	if len(store.doc.Tasks) != 1 {
		t.Fatalf("task not stored: %#v", store.doc.Tasks)
	}
}

func TestCreateTaskDefaultsPriority(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"No priority"}`)

	if err := createTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if store.doc.Tasks[0].Priority != domain.PriorityMedium {
		t.Fatalf("expected medium priority, got %q", store.doc.Tasks[0].Priority)
	}
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"blank title", `{"title":"   "}`},
		{"missing title", `{}`},
		{"bad priority", `{"title":"x","priority":"urgent"}`},
		{"not json", `{{{`},
		{"unknown field", `{"title":"x","color":"red"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			store := newMockStore()
			c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", tc.body)

			if err := createTask(store, allowAuth{})(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if store.updates != 0 {
				t.Fatalf("invalid input must not reach the store")
			}
		})
	}
}

func TestPatchTask(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.doc.Tasks = append(store.doc.Tasks, domain.Task{
		ID: "t1", Title: "old", Priority: domain.PriorityLow, CreatedAt: storage.Now(),
	})

	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/t1", `{"done":true,"priority":"high"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := patchTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := store.doc.Tasks[0]
	if !got.Done || got.Priority != domain.PriorityHigh || got.Title != "old" {
		t.Fatalf("unexpected task after patch: %#v", got)
	}
}

func TestPatchTaskNotFound(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPatch, "/api/tasks/ghost", `{"done":true}`)
	c.SetParamNames("id")
	c.SetParamValues("ghost")

	if err := patchTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.doc.Tasks = append(store.doc.Tasks,
		domain.Task{ID: "t1", Title: "keep", Priority: domain.PriorityMedium, CreatedAt: storage.Now()},
		domain.Task{ID: "t2", Title: "drop", Priority: domain.PriorityMedium, CreatedAt: storage.Now()},
	)
	c, rec := newJSONContext(e, http.MethodDelete, "/api/tasks/t2", "")
	c.SetParamNames("id")
	c.SetParamValues("t2")

	if err := deleteTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(store.doc.Tasks) != 1 || store.doc.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks after delete: %#v", store.doc.Tasks)
	}
}

func TestDeleteTaskNotFound(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodDelete, "/api/tasks/ghost", "")
	c.SetParamNames("id")
	c.SetParamValues("ghost")

	if err := deleteTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateFocusSession(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPost, "/api/focus", `{"minutes":25}`)

	if err := createFocusSession(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.doc.FocusSessions) != 1 || store.doc.FocusSessions[0].Minutes != 25 {
		t.Fatalf("unexpected focus sessions: %#v", store.doc.FocusSessions)
	}
}

func TestCreateFocusSessionRejectsNonPositiveMinutes(t *testing.T) {
	for _, body := range []string{`{"minutes":0}`, `{"minutes":-5}`, `{}`} {
		e := echo.New()
		store := newMockStore()
		c, rec := newJSONContext(e, http.MethodPost, "/api/focus", body)

		if err := createFocusSession(store, allowAuth{})(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestCreateJournal(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPost, "/api/journals", `{"text":"  shipped the release  "}`)

	if err := createJournal(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if len(store.doc.Journals) != 1 || store.doc.Journals[0].Text != "shipped the release" {
		t.Fatalf("unexpected journals: %#v", store.doc.Journals)
	}
}

func TestCreateEvent(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPost, "/api/events", `{"title":"Dentist","when":"2026-09-15T10:30:00+02:00"}`)

	if err := createEvent(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.doc.Events) != 1 {
		t.Fatalf("unexpected events: %#v", store.doc.Events)
	}
	want := time.Date(2026, 9, 15, 8, 30, 0, 0, time.UTC)
	if !store.doc.Events[0].When.Equal(want) {
		t.Fatalf("expected UTC timestamp %v, got %v", want, store.doc.Events[0].When)
	}
}

func TestCreateEventRejectsBadTimestamp(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPost, "/api/events", `{"title":"Dentist","when":"next tuesday"}`)

	if err := createEvent(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateLaunchpadItem(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	c, rec := newJSONContext(e, http.MethodPost, "/api/launchpad", `{"name":"Mail","url":"https://mail.example.com","description":"inbox"}`)

	if err := createLaunchpadItem(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	item := store.doc.Launchpad[0]
	if !item.Enabled || item.LaunchCount != 0 || item.LastLaunchedAt != nil {
		t.Fatalf("unexpected new item: %#v", item)
	}
	if !item.UpdatedAt.Equal(item.CreatedAt) {
		t.Fatalf("updatedAt should start equal to createdAt")
	}
}

func TestCreateLaunchpadItemDuplicateURL(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.doc.Launchpad = append(store.doc.Launchpad, domain.LaunchpadItem{
		ID: "l1", Name: "Mail", URL: "https://mail.example.com", Enabled: true,
		CreatedAt: storage.Now(), UpdatedAt: storage.Now(),
	})
	c, rec := newJSONContext(e, http.MethodPost, "/api/launchpad", `{"name":"Mail again","url":"https://mail.example.com"}`)

	if err := createLaunchpadItem(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.doc.Launchpad) != 1 {
		t.Fatalf("duplicate must not be stored: %#v", store.doc.Launchpad)
	}
}

func TestCreateLaunchpadItemRejectsBadURL(t *testing.T) {
	for _, url := range []string{"ftp://host/file", "/relative/path", "not a url", ""} {
		e := echo.New()
		store := newMockStore()
		body := `{"name":"Tile","url":"` + url + `"}`
		c, rec := newJSONContext(e, http.MethodPost, "/api/launchpad", body)

		if err := createLaunchpadItem(store, allowAuth{})(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("url %q: expected 400, got %d", url, rec.Code)
		}
	}
}

func TestPatchLaunchpadItemURLConflict(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	now := storage.Now()
	store.doc.Launchpad = append(store.doc.Launchpad,
		domain.LaunchpadItem{ID: "l1", Name: "Mail", URL: "https://mail.example.com", Enabled: true, CreatedAt: now, UpdatedAt: now},
		domain.LaunchpadItem{ID: "l2", Name: "Docs", URL: "https://docs.example.com", Enabled: true, CreatedAt: now, UpdatedAt: now},
	)
	c, rec := newJSONContext(e, http.MethodPatch, "/api/launchpad/l2", `{"url":"https://mail.example.com"}`)
	c.SetParamNames("id")
	c.SetParamValues("l2")

	if err := patchLaunchpadItem(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if store.doc.Launchpad[1].URL != "https://docs.example.com" {
		t.Fatalf("conflicting patch must not change the item")
	}
}

func TestPatchLaunchpadItemKeepsOwnURL(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	now := storage.Now()
	store.doc.Launchpad = append(store.doc.Launchpad, domain.LaunchpadItem{
		ID: "l1", Name: "Mail", URL: "https://mail.example.com", Enabled: true, CreatedAt: now, UpdatedAt: now,
	})
	c, rec := newJSONContext(e, http.MethodPatch, "/api/launchpad/l1", `{"url":"https://mail.example.com","name":"Mailbox"}`)
	c.SetParamNames("id")
	c.SetParamValues("l1")

	if err := patchLaunchpadItem(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("re-submitting an item's own URL must not conflict, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.doc.Launchpad[0].Name != "Mailbox" {
		t.Fatalf("patch not applied: %#v", store.doc.Launchpad[0])
	}
}

func TestLaunchLaunchpadItem(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	now := storage.Now()
	store.doc.Launchpad = append(store.doc.Launchpad, domain.LaunchpadItem{
		ID: "l1", Name: "Mail", URL: "https://mail.example.com", Enabled: true,
		LaunchCount: 4, CreatedAt: now, UpdatedAt: now,
	})
	c, rec := newJSONContext(e, http.MethodPost, "/api/launchpad/l1/launch", "")
	c.SetParamNames("id")
	c.SetParamValues("l1")

	if err := launchLaunchpadItem(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	item := store.doc.Launchpad[0]
	if item.LaunchCount != 5 || item.LastLaunchedAt == nil {
		t.Fatalf("launch not recorded: %#v", item)
	}
}

func TestLaunchDisabledItem(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	now := storage.Now()
	store.doc.Launchpad = append(store.doc.Launchpad, domain.LaunchpadItem{
		ID: "l1", Name: "Mail", URL: "https://mail.example.com", Enabled: false,
		CreatedAt: now, UpdatedAt: now,
	})
	c, rec := newJSONContext(e, http.MethodPost, "/api/launchpad/l1/launch", "")
	c.SetParamNames("id")
	c.SetParamValues("l1")

	if err := launchLaunchpadItem(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a disabled item, got %d", rec.Code)
	}
	if store.doc.Launchpad[0].LaunchCount != 0 {
		t.Fatalf("disabled launch must not count: %#v", store.doc.Launchpad[0])
	}
}

func TestGetLaunchpad(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	now := storage.Now()
	store.doc.Launchpad = append(store.doc.Launchpad, domain.LaunchpadItem{
		ID: "l1", Name: "Mail", URL: "https://mail.example.com", Enabled: true, CreatedAt: now, UpdatedAt: now,
	})
	c, rec := newJSONContext(e, http.MethodGet, "/api/launchpad", "")

	if err := getLaunchpad(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []domain.LaunchpadItem
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 1 || items[0].ID != "l1" {
		t.Fatalf("unexpected items: %#v", items)
	}
}

func TestHandlersRequireAuth(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	handlers := map[string]echo.HandlerFunc{
		"createTask":          createTask(store, denyAuth{}),
		"createJournal":       createJournal(store, denyAuth{}),
		"getLaunchpad":        getLaunchpad(store, denyAuth{}),
		"deleteTask":          deleteTask(store, denyAuth{}),
		"launchLaunchpadItem": launchLaunchpadItem(store, denyAuth{}),
	}
	for name, h := range handlers {
		c, rec := newJSONContext(e, http.MethodPost, "/api/anything", `{"title":"x"}`)
		c.SetParamNames("id")
		c.SetParamValues("t1")
		if err := h(c); err != nil {
			t.Fatalf("%s handler error: %v", name, err)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
		if store.updates != 0 {
			t.Fatalf("%s: unauthorized request must not reach the store", name)
		}
	}
}

func TestStorageFailureBecomes500(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.updErr = errors.New("disk on fire")
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", `{"title":"Buy milk"}`)

	if err := createTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Fatalf("internal error detail must not leak to the client: %s", rec.Body.String())
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	body := `{"title":"` + strings.Repeat("a", requestBodyMaxSize) + `"}`
	c, rec := newJSONContext(e, http.MethodPost, "/api/tasks", body)

	if err := createTask(store, allowAuth{})(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestDashboardEndToEnd(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	store.doc.Tasks = append(store.doc.Tasks, domain.Task{
		ID: "t1", Title: "Buy milk", Priority: domain.PriorityHigh, CreatedAt: storage.Now(),
	})
	Register(e, store, allowAuth{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc domain.Document
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(doc.Tasks) != 1 || doc.Tasks[0].Title != "Buy milk" {
		t.Fatalf("unexpected dashboard: %#v", doc)
	}
	if doc.FocusSessions == nil || doc.Journals == nil || doc.Events == nil || doc.Launchpad == nil {
		t.Fatalf("all collections must serialize as arrays: %s", rec.Body.String())
	}
}

func TestDashboardUnauthorized(t *testing.T) {
	e := echo.New()
	store := newMockStore()
	Register(e, store, denyAuth{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	Register(e, newMockStore(), allowAuth{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
