package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/hivemind/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 5 * time.Second

// Client wraps HTTP calls to the hivemind API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stats fetches task counts, the running and queued tasks and the resource
// status.
func (c *Client) Stats(ctx context.Context) (models.TaskStats, error) {
	var stats models.TaskStats
	err := c.get(ctx, "/stats", &stats)
	return stats, err
}

// ListTasks fetches tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string) ([]models.ParallelTask, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + status
	}
	var tasks []models.ParallelTask
	err := c.get(ctx, path, &tasks)
	return tasks, err
}

// Learnings fetches the per task type learnings.
func (c *Client) Learnings(ctx context.Context) (models.Learnings, error) {
	var l models.Learnings
	err := c.get(ctx, "/learnings", &l)
	return l, err
}

// Snapshot is everything the dashboard shows, fetched together.
type Snapshot struct {
	Stats     models.TaskStats
	Tasks     []models.ParallelTask
	Learnings models.Learnings
}

// Snapshot fetches stats, tasks and learnings.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if snap.Stats, err = c.Stats(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Tasks, err = c.ListTasks(ctx, ""); err != nil {
		return Snapshot{}, err
	}
	if snap.Learnings, err = c.Learnings(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
