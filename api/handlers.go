package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"alcove-api/domain"
	"alcove-api/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger) {
	e.GET("/api/dashboard", getDashboard(store, auth, logger))
	e.GET("/api/dashboard/stream", streamDashboard(store, auth))

	e.POST("/api/tasks", createTask(store, auth))
	e.PATCH("/api/tasks/:id", patchTask(store, auth))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth))

	e.POST("/api/focus", createFocusSession(store, auth))

	e.POST("/api/journals", createJournal(store, auth))
	e.DELETE("/api/journals/:id", deleteJournal(store, auth))

	e.POST("/api/events", createEvent(store, auth))
	e.DELETE("/api/events/:id", deleteEvent(store, auth))

	e.GET("/api/launchpad", getLaunchpad(store, auth))
	e.POST("/api/launchpad", createLaunchpadItem(store, auth))
	e.PATCH("/api/launchpad/:id", patchLaunchpadItem(store, auth))
	e.DELETE("/api/launchpad/:id", deleteLaunchpadItem(store, auth))
	e.POST("/api/launchpad/:id/launch", launchLaunchpadItem(store, auth))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getDashboard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newDashboardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		authErr := auth.VerifyAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		loadStart := time.Now()
		doc, loadErr := store.Load(ctx)
		metrics.ObserveLoad(time.Since(loadStart))
		if loadErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(loadErr)
			err = c.String(http.StatusInternalServerError, loadErr.Error())
			return err
		}
		metrics.SetEntityCount(len(doc.Tasks) + len(doc.FocusSessions) + len(doc.Journals) + len(doc.Events) + len(doc.Launchpad))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, doc)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title is required"})
		}
		priority := req.Priority
		if priority == "" {
			priority = domain.PriorityMedium
		}
		if !domain.ValidPriority(priority) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "priority must be high, medium or low"})
		}

		task := domain.Task{
			ID:        storage.NewID(),
			Title:     title,
			Priority:  priority,
			CreatedAt: storage.Now(),
		}
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			draft.Tasks = append(draft.Tasks, task)
			return storage.Success(task)
		})
		return respond(c, http.StatusCreated, outcome, err)
	}
}

func patchTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		var req patchTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title must not be blank"})
		}
		if req.Priority != nil && !domain.ValidPriority(*req.Priority) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "priority must be high, medium or low"})
		}

		id := c.Param("id")
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			task := draft.TaskByID(id)
			if task == nil {
				return storage.NotFound("task " + id + " does not exist")
			}
			if req.Title != nil {
				task.Title = strings.TrimSpace(*req.Title)
			}
			if req.Priority != nil {
				task.Priority = *req.Priority
			}
			if req.Done != nil {
				task.Done = *req.Done
			}
			return storage.Success(*task)
		})
		return respond(c, http.StatusOK, outcome, err)
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		id := c.Param("id")
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			kept := draft.Tasks[:0]
			for _, t := range draft.Tasks {
				if t.ID != id {
					kept = append(kept, t)
				}
			}
			if len(kept) == len(draft.Tasks) {
				return storage.NotFound("task " + id + " does not exist")
			}
			draft.Tasks = kept
			return storage.Success(nil)
		})
		return respond(c, http.StatusOK, outcome, err)
	}
}

func createFocusSession(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		var req createFocusRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Minutes <= 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "minutes must be greater than zero"})
		}

		session := domain.FocusSession{
			ID:        storage.NewID(),
			Minutes:   req.Minutes,
			CreatedAt: storage.Now(),
		}
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			draft.FocusSessions = append(draft.FocusSessions, session)
			return storage.Success(session)
		})
		return respond(c, http.StatusCreated, outcome, err)
	}
}

func createJournal(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		var req createJournalRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "text is required"})
		}

		entry := domain.Journal{
			ID:        storage.NewID(),
			Text:      text,
			CreatedAt: storage.Now(),
		}
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			draft.Journals = append(draft.Journals, entry)
			return storage.Success(entry)
		})
		return respond(c, http.StatusCreated, outcome, err)
	}
}

func deleteJournal(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		id := c.Param("id")
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			kept := draft.Journals[:0]
			for _, j := range draft.Journals {
				if j.ID != id {
					kept = append(kept, j)
				}
			}
			if len(kept) == len(draft.Journals) {
				return storage.NotFound("journal " + id + " does not exist")
			}
			draft.Journals = kept
			return storage.Success(nil)
		})
		return respond(c, http.StatusOK, outcome, err)
	}
}

func createEvent(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		var req createEventRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title is required"})
		}
		when, err := time.Parse(time.RFC3339, req.When)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "when must be an RFC 3339 timestamp"})
		}

		event := domain.CalendarEvent{
			ID:        storage.NewID(),
			Title:     title,
			When:      when.UTC(),
			CreatedAt: storage.Now(),
		}
		outcome, uerr := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			draft.Events = append(draft.Events, event)
			return storage.Success(event)
		})
		return respond(c, http.StatusCreated, outcome, uerr)
	}
}

func deleteEvent(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		id := c.Param("id")
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			kept := draft.Events[:0]
			for _, e := range draft.Events {
				if e.ID != id {
					kept = append(kept, e)
				}
			}
			if len(kept) == len(draft.Events) {
				return storage.NotFound("event " + id + " does not exist")
			}
			draft.Events = kept
			return storage.Success(nil)
		})
		return respond(c, http.StatusOK, outcome, err)
	}
}

func getLaunchpad(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		doc, err := store.Load(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, doc.Launchpad)
	}
}

func createLaunchpadItem(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		var req createLaunchpadRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if msg := validateLaunchpadFields(req.Name, req.URL, req.Description); msg != "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
		}

		now := storage.Now()
		item := domain.LaunchpadItem{
			ID:          storage.NewID(),
			Name:        strings.TrimSpace(req.Name),
			URL:         strings.TrimSpace(req.URL),
			Description: strings.TrimSpace(req.Description),
			Enabled:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			// The duplicate check runs inside the transaction so it is
			// atomic with respect to every other mutation.
			if draft.LaunchpadByURL(item.URL) != nil {
				return storage.Conflict("launchpad URL already exists: " + item.URL)
			}
			draft.Launchpad = append(draft.Launchpad, item)
			return storage.Success(item)
		})
		return respond(c, http.StatusCreated, outcome, err)
	}
}

func patchLaunchpadItem(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		var req patchLaunchpadRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Name != nil {
			if msg := validateLaunchpadName(*req.Name); msg != "" {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
			}
		}
		if req.URL != nil && !storage.ValidLaunchURL(strings.TrimSpace(*req.URL)) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "url must be absolute http or https"})
		}
		if req.Description != nil && len([]rune(strings.TrimSpace(*req.Description))) > domain.LaunchpadDescriptionMax {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "description is too long"})
		}

		id := c.Param("id")
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			item := draft.LaunchpadByID(id)
			if item == nil {
				return storage.NotFound("launchpad item " + id + " does not exist")
			}
			if req.URL != nil {
				next := strings.TrimSpace(*req.URL)
				if other := draft.LaunchpadByURL(next); other != nil && other.ID != id {
					return storage.Conflict("launchpad URL already exists: " + next)
				}
				item.URL = next
			}
			if req.Name != nil {
				item.Name = strings.TrimSpace(*req.Name)
			}
			if req.Description != nil {
				item.Description = strings.TrimSpace(*req.Description)
			}
			if req.Enabled != nil {
				item.Enabled = *req.Enabled
			}
			item.UpdatedAt = storage.Now()
			return storage.Success(*item)
		})
		return respond(c, http.StatusOK, outcome, err)
	}
}

func deleteLaunchpadItem(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		id := c.Param("id")
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			kept := draft.Launchpad[:0]
			for _, item := range draft.Launchpad {
				if item.ID != id {
					kept = append(kept, item)
				}
			}
			if len(kept) == len(draft.Launchpad) {
				return storage.NotFound("launchpad item " + id + " does not exist")
			}
			draft.Launchpad = kept
			return storage.Success(nil)
		})
		return respond(c, http.StatusOK, outcome, err)
	}
}

func launchLaunchpadItem(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ok, err := requireAuth(c, auth); !ok {
			return err
		}
		id := c.Param("id")
		outcome, err := store.Update(c.Request().Context(), func(draft *domain.Document) storage.Outcome {
			item := draft.LaunchpadByID(id)
			if item == nil {
				return storage.NotFound("launchpad item " + id + " does not exist")
			}
			if !item.Enabled {
				return storage.Disabled("launchpad item " + id + " is disabled")
			}
			now := storage.Now()
			item.LaunchCount++
			item.LastLaunchedAt = &now
			item.UpdatedAt = now
			return storage.Success(*item)
		})
		return respond(c, http.StatusOK, outcome, err)
	}
}

// requireAuth vets the request's bearer token. It reports authorization as
// a value distinct from the response-write error: on a rejected token it
// writes the 401 itself and returns ok=false, so callers must stop on !ok
// rather than on err, which only reflects whether the response write failed.
func requireAuth(c echo.Context, auth Authenticator) (ok bool, err error) {
	if verr := auth.VerifyAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); verr != nil {
		return false, c.String(http.StatusUnauthorized, verr.Error())
	}
	return true, nil
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func validateLaunchpadFields(name, rawURL, description string) string {
	if msg := validateLaunchpadName(name); msg != "" {
		return msg
	}
	if !storage.ValidLaunchURL(strings.TrimSpace(rawURL)) {
		return "url must be absolute http or https"
	}
	if len([]rune(strings.TrimSpace(description))) > domain.LaunchpadDescriptionMax {
		return "description is too long"
	}
	return ""
}

func validateLaunchpadName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "name is required"
	}
	if len([]rune(trimmed)) > domain.LaunchpadNameMax {
		return "name is too long"
	}
	return ""
}

// respond maps a transaction result to a transport status: business
// failures come out of the Outcome code, fatal I/O errors become 500s.
func respond(c echo.Context, successStatus int, outcome storage.Outcome, err error) error {
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal failure"})
	}
	switch outcome.Code {
	case storage.CodeOK:
		if outcome.Value == nil {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(successStatus, outcome.Value)
	case storage.CodeNotFound:
		return c.JSON(http.StatusNotFound, errorResponse{Error: outcome.Reason})
	case storage.CodeConflict, storage.CodeDisabled:
		return c.JSON(http.StatusConflict, errorResponse{Error: outcome.Reason})
	case storage.CodeInvalid:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: outcome.Reason})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unknown outcome"})
	}
}
