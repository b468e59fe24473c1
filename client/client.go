package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"boardsync/board"
	"boardsync/domain"
)

// Client implements the durable data service contract over the boardsync
// HTTP API.
type Client struct {
	baseURL string
	bearer  string
	http    *http.Client
}

func New(baseURL, bearer string) *Client {
	return &Client{baseURL: baseURL, bearer: bearer, http: &http.Client{}}
}

type createColumnRequest struct {
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type reorderColumnsRequest struct {
	BoardID string                  `json:"boardId"`
	Columns []board.ColumnPlacement `json:"columns"`
}

type createTaskRequest struct {
	ColumnID string `json:"columnId"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type reorderTasksRequest struct {
	Tasks []board.TaskPlacement `json:"tasks"`
}

func (c *Client) CreateColumn(ctx context.Context, boardID, title string, position int) (domain.Column, error) {
	var col domain.Column
	err := c.do(ctx, http.MethodPost, "/api/columns", createColumnRequest{BoardID: boardID, Title: title, Position: position}, &col)
	return col, err
}

func (c *Client) UpdateColumn(ctx context.Context, columnID string, fields domain.ColumnFields) error {
	return c.do(ctx, http.MethodPatch, "/api/columns/"+columnID, fields, nil)
}

func (c *Client) ReorderColumns(ctx context.Context, boardID string, placements []board.ColumnPlacement) error {
	return c.do(ctx, http.MethodPost, "/api/columns/reorder", reorderColumnsRequest{BoardID: boardID, Columns: placements}, nil)
}

func (c *Client) DeleteColumn(ctx context.Context, columnID string) error {
	return c.do(ctx, http.MethodDelete, "/api/columns/"+columnID, nil, nil)
}

func (c *Client) CreateTask(ctx context.Context, columnID, title string, position int) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", createTaskRequest{ColumnID: columnID, Title: title, Position: position}, &task)
	return task, err
}

func (c *Client) UpdateTask(ctx context.Context, taskID string, fields domain.TaskFields) error {
	return c.do(ctx, http.MethodPatch, "/api/tasks/"+taskID, fields, nil)
}

func (c *Client) ReorderTasks(ctx context.Context, placements []board.TaskPlacement) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/reorder", reorderTasksRequest{Tasks: placements}, nil)
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+taskID, nil, nil)
}

func (c *Client) FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/boards/"+boardID+"/snapshot", nil, &snap)
	return snap, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
