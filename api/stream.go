package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const streamInterval = 5 * time.Second

// streamDashboard pushes the full document over server-sent events. The
// browser EventSource API cannot set request headers, so the bearer token is
// also accepted as a ?token= query parameter.
func streamDashboard(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			if token := c.QueryParam("token"); token != "" {
				header = "Bearer " + token
			}
		}
		if err := auth.VerifyAuthHeader(header); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ticker := time.NewTicker(streamInterval)
		defer ticker.Stop()
		for {
			if doc, err := store.Load(ctx); err == nil {
				data, merr := sonic.ConfigStd.Marshal(doc)
				if merr == nil {
					if _, err := c.Response().Write([]byte("data: ")); err != nil {
						return nil
					}
					if _, err := c.Response().Write(data); err != nil {
						return nil
					}
					if _, err := c.Response().Write([]byte("\n\n")); err != nil {
						return nil
					}
					flusher.Flush()
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}
