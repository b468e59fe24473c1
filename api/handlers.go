package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, pub Publisher, sub Subscriber, logger *log.Logger) {
	e.GET("/api/boards", getBoards(store, auth))
	e.POST("/api/boards", postBoard(store, auth))
	e.PATCH("/api/boards/:id", patchBoard(store, auth))
	e.DELETE("/api/boards/:id", deleteBoard(store, auth))
	e.GET("/api/boards/:id/snapshot", getSnapshot(store, auth, logger))
	e.GET("/api/boards/:id/events", streamBoard(auth, sub, logger))

	e.POST("/api/columns", postColumn(store, auth, pub))
	e.PATCH("/api/columns/:id", patchColumn(store, auth, pub))
	e.POST("/api/columns/reorder", postColumnReorder(store, auth, pub))
	e.DELETE("/api/columns/:id", deleteColumn(store, auth, pub))

	e.POST("/api/tasks", postTask(store, auth, pub))
	e.PATCH("/api/tasks/:id", patchTask(store, auth, pub))
	e.POST("/api/tasks/reorder", postTaskReorder(store, auth, pub))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth, pub))
	e.GET("/api/tasks/search", searchTasks(store, auth))

	e.POST("/api/tasks/:id/comments", postComment(store, auth, pub))
	e.GET("/api/tasks/:id/comments", getComments(store, auth))
	e.DELETE("/api/comments/:id", deleteComment(store, auth))
	e.POST("/api/tasks/:id/attachments", postAttachment(store, auth))
	e.GET("/api/tasks/:id/attachments", getAttachments(store, auth))
	e.DELETE("/api/attachments/:id", deleteAttachment(store, auth))
	e.POST("/api/tasks/:id/relations", postRelation(store, auth))
	e.GET("/api/tasks/:id/relations", getRelations(store, auth))
	e.DELETE("/api/relations/:id", deleteRelation(store, auth))

	e.POST("/api/boards/:id/members", postMember(store, auth))
	e.GET("/api/boards/:id/members", getMembers(store, auth))
	e.DELETE("/api/boards/:id/members/:userId", deleteMember(store, auth))
	e.GET("/api/notifications", getNotifications(store, auth))
	e.POST("/api/notifications/:id/read", postNotificationRead(store, auth))
	e.POST("/api/boards/:id/messages", postMessage(store, auth, pub))
	e.GET("/api/boards/:id/messages", getMessages(store, auth))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// decodeBody decodes a size-limited JSON request body, rejecting unknown
// fields.
func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func storageStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func newEvent(boardID, entityID, entityType, eventType, userID string, data []byte, stamp int64) domain.Event {
	return domain.Event{
		ID:         uuid.NewString(),
		BoardID:    boardID,
		EntityID:   entityID,
		EntityType: entityType,
		Type:       eventType,
		Data:       data,
		Time:       stamp,
		UserID:     userID,
	}
}

type createBoardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerName   string `json:"ownerName"`
	OwnerEmail  string `json:"ownerEmail"`
}

type updateBoardRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func getBoards(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boards, err := store.ListBoards(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func postBoard(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if !validTitle(req.Title) {
			return c.String(http.StatusBadRequest, domain.ErrEmptyTitle.Error())
		}
		b := domain.Board{
			ID:          uuid.NewString(),
			Title:       req.Title,
			Description: req.Description,
			OwnerID:     userID,
			CreatedAt:   domain.NextStamp(),
		}
		if err := store.InsertBoard(ctx, b, req.OwnerName, req.OwnerEmail); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		return c.JSON(http.StatusCreated, b)
	}
}

func patchBoard(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")
		var req updateBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title != nil && !validTitle(*req.Title) {
			return c.String(http.StatusBadRequest, domain.ErrEmptyTitle.Error())
		}
		if err := store.UpdateBoard(ctx, boardID, req.Title, req.Description); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, boardID)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteBoard(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")
		b, err := store.GetBoard(ctx, boardID)
		if err != nil {
			return c.String(storageStatus(err), err.Error())
		}
		if b.OwnerID != userID {
			return c.NoContent(http.StatusForbidden)
		}
		if err := store.DeleteBoard(ctx, boardID); err != nil {
			c.Logger().Error(err)
			return c.String(storageStatus(err), err.Error())
		}
		store.EvictBoard(ctx, boardID)
		return c.NoContent(http.StatusNoContent)
	}
}

func getSnapshot(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSnapshotRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		boardID := c.Param("id")

		fetchStart := time.Now()
		snap, fetchErr := store.FetchBoardSnapshot(ctx, boardID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(storageStatus(fetchErr), fetchErr.Error())
			return err
		}
		if !isMember(snap, userID) {
			metrics.SetErrorStage("membership")
			err = c.NoContent(http.StatusForbidden)
			return err
		}
		metrics.SetColumnsReturned(len(snap.Columns))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snap)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func isMember(snap domain.Snapshot, userID string) bool {
	if snap.Board.OwnerID == userID {
		return true
	}
	for _, m := range snap.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
