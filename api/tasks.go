package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"boardsync/board"
	"boardsync/domain"
	"boardsync/storage"
)

const defaultSearchLimit = 10

type createTaskRequest struct {
	ColumnID    string `json:"columnId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

type reorderTasksRequest struct {
	Tasks []board.TaskPlacement `json:"tasks"`
}

func postTask(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if !validTitle(req.Title) {
			return c.String(http.StatusBadRequest, domain.ErrEmptyTitle.Error())
		}
		col, err := store.GetColumn(ctx, req.ColumnID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		stamp := domain.NextStamp()
		task := domain.Task{
			ID:          uuid.NewString(),
			ColumnID:    req.ColumnID,
			Title:       req.Title,
			Description: req.Description,
			Position:    req.Position,
			CreatorID:   userID,
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		}
		if err := store.InsertTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, col.BoardID)
		publishEntity(c, pub, col.BoardID, task.ID, domain.EntityTask, domain.TaskCreated, userID, task, stamp)
		return c.JSON(http.StatusCreated, task)
	}
}

func patchTask(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")
		var fields domain.TaskFields
		if err := decodeBody(c, &fields); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if fields.Title != nil && !validTitle(*fields.Title) {
			return c.String(http.StatusBadRequest, domain.ErrEmptyTitle.Error())
		}
		task, boardID, err := store.GetTask(ctx, taskID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		stamp := domain.NextStamp()
		if err := store.UpdateTask(ctx, taskID, fields, stamp); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		prevAssignee := task.AssigneeID
		applyTaskFields(&task, fields)
		task.UpdatedAt = stamp
		store.EvictBoard(ctx, boardID)
		publishEntity(c, pub, boardID, task.ID, domain.EntityTask, domain.TaskUpdated, userID, task, stamp)

		if fields.AssigneeID != nil && *fields.AssigneeID != "" && *fields.AssigneeID != prevAssignee && *fields.AssigneeID != userID {
			job := storage.NotificationJob{
				UserID:  *fields.AssigneeID,
				BoardID: boardID,
				TaskID:  task.ID,
				Type:    "task-assigned",
				Message: "You were assigned to \"" + task.Title + "\"",
			}
			if err := store.EnqueueNotification(ctx, job); err != nil {
				c.Logger().Errorf("enqueue notification: %v", err)
			}
		}
		return c.JSON(http.StatusOK, task)
	}
}

func applyTaskFields(t *domain.Task, fields domain.TaskFields) {
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Description != nil {
		t.Description = *fields.Description
	}
	if fields.ColumnID != nil {
		t.ColumnID = *fields.ColumnID
	}
	if fields.Position != nil {
		t.Position = *fields.Position
	}
	if fields.AssigneeID != nil {
		t.AssigneeID = *fields.AssigneeID
	}
}

func postTaskReorder(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req reorderTasksRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(req.Tasks) == 0 {
			return c.String(http.StatusBadRequest, "missing tasks")
		}
		stamp := domain.NextStamp()
		if err := store.ReorderTasks(ctx, req.Tasks, stamp); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		boardID := ""
		for _, p := range req.Tasks {
			task, b, err := store.GetTask(ctx, p.TaskID)
			if err != nil {
				c.Logger().Errorf("fetch reordered task %s: %v", p.TaskID, err)
				continue
			}
			if boardID == "" {
				boardID = b
				store.EvictBoard(ctx, boardID)
			}
			publishEntity(c, pub, b, task.ID, domain.EntityTask, domain.TaskUpdated, userID, task, stamp)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")
		_, boardID, err := store.GetTask(ctx, taskID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		if err := store.DeleteTask(ctx, taskID); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, boardID)
		publishEntity(c, pub, boardID, taskID, domain.EntityTask, domain.TaskDeleted, userID, nil, domain.NextStamp())
		return c.NoContent(http.StatusNoContent)
	}
}

func searchTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.QueryParam("boardId")
		query := strings.TrimSpace(c.QueryParam("q"))
		if boardID == "" || query == "" {
			return c.String(http.StatusBadRequest, "missing boardId or q")
		}
		limit := defaultSearchLimit
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = n
		}
		tasks, err := store.SearchTasks(ctx, boardID, query, c.QueryParam("exclude"), limit)
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, tasks)
	}
}
