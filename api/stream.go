package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

const streamHeartbeat = 25 * time.Second

// streamBoard serves a board's change feed over SSE. EventSource cannot set
// headers, so the token may also arrive as a query parameter.
func streamBoard(auth Authenticator, sub Subscriber, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		subscription, err := sub.Subscribe(ctx, boardID)
		if err != nil {
			logger.WithFields(log.Fields{"board": boardID, "user": userID}).Errorf("subscribe: %v", err)
			return c.String(http.StatusInternalServerError, "subscribe failed")
		}
		defer subscription.Close()

		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-heartbeat.C:
				if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case ev, ok := <-subscription.Events():
				if !ok {
					// Client reconnects and refetches the snapshot.
					return nil
				}
				if err := writeEvent(c, ev); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(c echo.Context, ev domain.Event) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		c.Logger().Errorf("marshal event: %v", err)
		return nil
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	_, err = c.Response().Write([]byte("\n\n"))
	return err
}
