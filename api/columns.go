package api

import (
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"boardsync/board"
	"boardsync/domain"
)

type createColumnRequest struct {
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type updateColumnRequest struct {
	Title *string `json:"title"`
}

type reorderColumnsRequest struct {
	BoardID string                  `json:"boardId"`
	Columns []board.ColumnPlacement `json:"columns"`
}

func validTitle(title string) bool {
	return strings.TrimSpace(title) != ""
}

func postColumn(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if !validTitle(req.Title) {
			return c.String(http.StatusBadRequest, domain.ErrEmptyTitle.Error())
		}
		if req.BoardID == "" {
			return c.String(http.StatusBadRequest, "missing boardId")
		}
		col := domain.Column{
			ID:        uuid.NewString(),
			BoardID:   req.BoardID,
			Title:     req.Title,
			Position:  req.Position,
			UpdatedAt: domain.NextStamp(),
		}
		if err := store.InsertColumn(ctx, col); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, col.BoardID)
		publishEntity(c, pub, col.BoardID, col.ID, domain.EntityColumn, domain.ColumnCreated, userID, col, col.UpdatedAt)
		return c.JSON(http.StatusCreated, col)
	}
}

func patchColumn(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		columnID := c.Param("id")
		var req updateColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title != nil && !validTitle(*req.Title) {
			return c.String(http.StatusBadRequest, domain.ErrEmptyTitle.Error())
		}
		col, err := store.GetColumn(ctx, columnID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		stamp := domain.NextStamp()
		if err := store.UpdateColumn(ctx, columnID, domain.ColumnFields{Title: req.Title}, stamp); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		if req.Title != nil {
			col.Title = *req.Title
		}
		col.UpdatedAt = stamp
		store.EvictBoard(ctx, col.BoardID)
		publishEntity(c, pub, col.BoardID, col.ID, domain.EntityColumn, domain.ColumnUpdated, userID, col, stamp)
		return c.JSON(http.StatusOK, col)
	}
}

func postColumnReorder(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req reorderColumnsRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.BoardID == "" || len(req.Columns) == 0 {
			return c.String(http.StatusBadRequest, "missing boardId or columns")
		}
		stamp := domain.NextStamp()
		if err := store.ReorderColumns(ctx, req.Columns, stamp); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, req.BoardID)
		// Subscribers merge full rows, so fan out the post-reorder state of
		// every touched column rather than bare positions.
		cols, err := store.ListColumns(ctx, req.BoardID)
		if err == nil {
			touched := make(map[string]struct{}, len(req.Columns))
			for _, p := range req.Columns {
				touched[p.ColumnID] = struct{}{}
			}
			for _, col := range cols {
				if _, ok := touched[col.ID]; !ok {
					continue
				}
				publishEntity(c, pub, req.BoardID, col.ID, domain.EntityColumn, domain.ColumnUpdated, userID, col, stamp)
			}
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteColumn(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		columnID := c.Param("id")
		col, err := store.GetColumn(ctx, columnID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		removed, err := store.DeleteColumn(ctx, columnID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, col.BoardID)
		stamp := domain.NextStamp()
		for _, t := range removed {
			publishEntity(c, pub, col.BoardID, t.ID, domain.EntityTask, domain.TaskDeleted, userID, nil, stamp)
		}
		publishEntity(c, pub, col.BoardID, columnID, domain.EntityColumn, domain.ColumnDeleted, userID, nil, stamp)
		return c.NoContent(http.StatusNoContent)
	}
}

// publishEntity marshals the entity payload and fans the event out. Publish
// failures are logged but never fail the request; the durable write already
// happened and clients recover via snapshot refresh.
func publishEntity(c echo.Context, pub Publisher, boardID, entityID, entityType, eventType, userID string, entity any, stamp int64) {
	var data []byte
	if entity != nil {
		var err error
		data, err = sonic.Marshal(entity)
		if err != nil {
			c.Logger().Errorf("marshal event payload: %v", err)
			return
		}
	}
	ev := newEvent(boardID, entityID, entityType, eventType, userID, data, stamp)
	if err := pub.Publish(c.Request().Context(), ev); err != nil {
		c.Logger().Errorf("publish %s: %v", eventType, err)
	}
}
