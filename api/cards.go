package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"boardsync/domain"
	"boardsync/storage"
)

type createCommentRequest struct {
	Content string `json:"content"`
}

type createAttachmentRequest struct {
	Name     string `json:"name"`
	BlobPath string `json:"blobPath"`
	Size     int64  `json:"size"`
}

type createRelationRequest struct {
	TargetTaskID string `json:"targetTaskId"`
	Type         string `json:"type"`
}

func postComment(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")
		var req createCommentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Content) == "" {
			return c.String(http.StatusBadRequest, "empty content")
		}
		task, boardID, err := store.GetTask(ctx, taskID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		comment := domain.Comment{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			UserID:    userID,
			Content:   req.Content,
			CreatedAt: domain.NextStamp(),
		}
		if err := store.InsertComment(ctx, comment); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		publishEntity(c, pub, boardID, comment.ID, domain.EntityComment, domain.CommentAdded, userID, comment, comment.CreatedAt)

		if task.AssigneeID != "" && task.AssigneeID != userID {
			job := storage.NotificationJob{
				UserID:  task.AssigneeID,
				BoardID: boardID,
				TaskID:  taskID,
				Type:    "comment-added",
				Message: "New comment on \"" + task.Title + "\"",
			}
			if err := store.EnqueueNotification(ctx, job); err != nil {
				c.Logger().Errorf("enqueue notification: %v", err)
			}
		}
		return c.JSON(http.StatusCreated, comment)
	}
}

func getComments(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		comments, err := store.ListComments(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, comments)
	}
}

func deleteComment(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := store.DeleteComment(ctx, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postAttachment(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")
		var req createAttachmentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Name == "" || req.BlobPath == "" {
			return c.String(http.StatusBadRequest, "missing name or blobPath")
		}
		if _, _, err := store.GetTask(ctx, taskID); err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		a := domain.Attachment{
			ID:         uuid.NewString(),
			TaskID:     taskID,
			Name:       req.Name,
			BlobPath:   req.BlobPath,
			Size:       req.Size,
			UploadedBy: userID,
			CreatedAt:  domain.NextStamp(),
		}
		if err := store.InsertAttachment(ctx, a); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusCreated, a)
	}
}

func getAttachments(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		attachments, err := store.ListAttachments(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, attachments)
	}
}

func deleteAttachment(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := store.DeleteAttachment(ctx, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func validRelationType(t string) bool {
	switch t {
	case domain.RelationBlocks, domain.RelationDuplicates, domain.RelationRelatesTo:
		return true
	}
	return false
}

func postRelation(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sourceID := c.Param("id")
		var req createRelationRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if !validRelationType(req.Type) {
			return c.String(http.StatusBadRequest, "invalid relation type")
		}
		if req.TargetTaskID == "" || req.TargetTaskID == sourceID {
			return c.String(http.StatusBadRequest, "invalid target task")
		}
		if _, _, err := store.GetTask(ctx, req.TargetTaskID); err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		r := domain.TaskRelation{
			ID:           uuid.NewString(),
			SourceTaskID: sourceID,
			TargetTaskID: req.TargetTaskID,
			Type:         req.Type,
		}
		if err := store.InsertRelation(ctx, r); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusCreated, r)
	}
}

func getRelations(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		relations, err := store.ListRelations(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, relations)
	}
}

func deleteRelation(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := store.DeleteRelation(ctx, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}
