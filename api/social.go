package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"boardsync/domain"
	"boardsync/storage"
)

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func postMember(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")
		var req addMemberRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Email) == "" {
			return c.String(http.StatusBadRequest, "missing email")
		}
		b, err := store.GetBoard(ctx, boardID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		if b.OwnerID != userID {
			return c.NoContent(http.StatusForbidden)
		}
		profile, err := store.FindMemberByEmail(ctx, req.Email)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		role := req.Role
		if role == "" {
			role = "member"
		}
		m := domain.Member{
			BoardID: boardID,
			UserID:  profile.UserID,
			Role:    role,
			Name:    profile.Name,
			Email:   profile.Email,
		}
		if err := store.InsertMember(ctx, m); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, boardID)
		job := storage.NotificationJob{
			UserID:  m.UserID,
			BoardID: boardID,
			Type:    "board-invite",
			Message: "You were added to \"" + b.Title + "\"",
		}
		if err := store.EnqueueNotification(ctx, job); err != nil {
			c.Logger().Errorf("enqueue notification: %v", err)
		}
		return c.JSON(http.StatusCreated, m)
	}
}

func getMembers(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		members, err := store.ListMembers(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, members)
	}
}

func deleteMember(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")
		target := c.Param("userId")
		b, err := store.GetBoard(ctx, boardID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		// Owners remove anyone; members may only remove themselves.
		if b.OwnerID != userID && target != userID {
			return c.NoContent(http.StatusForbidden)
		}
		if err := store.DeleteMember(ctx, boardID, target); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, boardID)
		return c.NoContent(http.StatusNoContent)
	}
}

func getNotifications(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		notifications, err := store.ListNotifications(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, notifications)
	}
}

func postNotificationRead(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := store.MarkNotificationRead(ctx, userID, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postMessage(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")
		var req sendMessageRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Content) == "" {
			return c.String(http.StatusBadRequest, "empty content")
		}
		m := domain.ChatMessage{
			ID:        uuid.NewString(),
			BoardID:   boardID,
			SenderID:  userID,
			Content:   req.Content,
			CreatedAt: domain.NextStamp(),
		}
		if err := store.InsertMessage(ctx, m); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		publishEntity(c, pub, boardID, m.ID, domain.EntityMessage, domain.MessageSent, userID, m, m.CreatedAt)
		return c.JSON(http.StatusCreated, m)
	}
}

func getMessages(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		messages, err := store.ListMessages(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, messages)
	}
}
