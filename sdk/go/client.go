package crewlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Crewline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Volunteer represents the API volunteer model (partial).
type Volunteer struct {
	ID          int64  `json:"id"`
	Handle      string `json:"handle"`
	Name        string `json:"name,omitempty"`
	Status      string `json:"status"`
	Commitments int    `json:"commitments"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end,omitempty"`
}

// Event represents the API event model (partial).
type Event struct {
	ID     int64   `json:"id"`
	Title  string  `json:"title"`
	Date   *string `json:"date,omitempty"`
	Format string  `json:"format"`
	Status string  `json:"status"`
	Venue  string  `json:"venue,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID      int64  `json:"id"`
	EventID int64  `json:"event_id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
}

// Assignment joins a volunteer to a task.
type Assignment struct {
	TaskID      int64  `json:"task_id"`
	VolunteerID int64  `json:"volunteer_id"`
	AssignedBy  *int64 `json:"assigned_by,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// VolunteerRef is a compact volunteer reference used in summaries.
type VolunteerRef struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
}

// Decision is the answer to a can-assign probe.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CompletionResult summarizes a task completion.
type CompletionResult struct {
	Task            Task           `json:"task"`
	AlreadyComplete bool           `json:"already_complete"`
	Credited        []VolunteerRef `json:"credited,omitempty"`
	Promoted        []VolunteerRef `json:"promoted,omitempty"`
	Failed          []string       `json:"failed,omitempty"`
}

// CascadeSummary summarizes the task cascade of an event completion.
type CascadeSummary struct {
	TasksCompleted int            `json:"tasks_completed"`
	Credited       []VolunteerRef `json:"credited,omitempty"`
	Promoted       []VolunteerRef `json:"promoted,omitempty"`
	TaskFailures   []string       `json:"task_failures,omitempty"`
}

// EventStatusResult is the response of a status change.
type EventStatusResult struct {
	Event   Event           `json:"event"`
	Cascade *CascadeSummary `json:"cascade,omitempty"`
}

// StatusReport groups the roster by status.
type StatusReport struct {
	GeneratedAt string                    `json:"generated_at"`
	Total       int                       `json:"total"`
	Counts      map[string]int            `json:"counts"`
	ByStatus    map[string][]VolunteerRef `json:"by_status"`
}

// ResetResult summarizes a period reset.
type ResetResult struct {
	EndDate     string         `json:"end_date"`
	NextStart   string         `json:"next_start"`
	Total       int            `json:"total"`
	Inactivated []VolunteerRef `json:"inactivated,omitempty"`
	Failures    []string       `json:"failures,omitempty"`
}

// JournalEntry is an append-only change record.
type JournalEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges the admin secret for a bearer token and stores it on the
// client for subsequent calls.
func (c *Client) Login(ctx context.Context, secret, actor string) error {
	body := map[string]any{"secret": secret}
	if actor != "" {
		body["actor"] = actor
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// Logout revokes the current session token.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v0/auth/logout", nil, nil)
}

// CreateVolunteer enrolls a volunteer on probation.
func (c *Client) CreateVolunteer(ctx context.Context, handle, name string) (Volunteer, error) {
	body := map[string]any{"handle": handle, "name": name}
	var resp Volunteer
	err := c.do(ctx, http.MethodPost, "v0/volunteers", body, &resp)
	return resp, err
}

// Volunteer fetches a volunteer by id.
func (c *Client) Volunteer(ctx context.Context, id int64) (Volunteer, error) {
	var resp Volunteer
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/volunteers/%d", id), nil, &resp)
	return resp, err
}

// VolunteerByHandle fetches a volunteer by handle.
func (c *Client) VolunteerByHandle(ctx context.Context, handle string) (Volunteer, error) {
	var resp Volunteer
	endpoint := "v0/volunteers/by-handle/" + url.PathEscape(handle)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Volunteers lists volunteers, optionally filtered by status.
func (c *Client) Volunteers(ctx context.Context, status string) ([]Volunteer, error) {
	endpoint := "v0/volunteers"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Volunteer
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetVolunteerStatus overrides a volunteer's lifecycle status.
func (c *Client) SetVolunteerStatus(ctx context.Context, id int64, status string) (Volunteer, error) {
	var resp Volunteer
	endpoint := fmt.Sprintf("v0/volunteers/%d/status", id)
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// SetCommitments overrides a volunteer's commitment counter.
func (c *Client) SetCommitments(ctx context.Context, id int64, commitments int) (Volunteer, error) {
	var resp Volunteer
	endpoint := fmt.Sprintf("v0/volunteers/%d/commitments", id)
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"commitments": commitments}, &resp)
	return resp, err
}

// Promote promotes the volunteer if the commitment target is met.
func (c *Client) Promote(ctx context.Context, id int64) (bool, error) {
	var resp struct {
		Promoted bool `json:"promoted"`
	}
	endpoint := fmt.Sprintf("v0/volunteers/%d/promote", id)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Promoted, err
}

// DeleteVolunteer removes a volunteer and their assignments.
func (c *Client) DeleteVolunteer(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v0/volunteers/%d", id), nil, nil)
}

// CreateEvent creates an event; template and extra tasks are seeded with it.
func (c *Client) CreateEvent(ctx context.Context, title, date, format string, tasks []string) (Event, []Task, error) {
	body := map[string]any{"title": title, "format": format}
	if date != "" {
		body["date"] = date
	}
	if len(tasks) > 0 {
		body["tasks"] = tasks
	}
	var resp struct {
		Event Event  `json:"event"`
		Tasks []Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodPost, "v0/events", body, &resp)
	return resp.Event, resp.Tasks, err
}

// Events lists events, optionally filtered by status.
func (c *Client) Events(ctx context.Context, status string) ([]Event, error) {
	endpoint := "v0/events"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetEventStatus transitions an event; completing one cascades its open tasks.
func (c *Client) SetEventStatus(ctx context.Context, id int64, status string) (EventStatusResult, error) {
	var resp EventStatusResult
	endpoint := fmt.Sprintf("v0/events/%d/status", id)
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// CreateTask adds a task to an event.
func (c *Client) CreateTask(ctx context.Context, eventID int64, title, description string) (Task, error) {
	body := map[string]any{"title": title, "description": description}
	var resp Task
	endpoint := fmt.Sprintf("v0/events/%d/tasks", eventID)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CanAssign probes whether the volunteer may take the task.
func (c *Client) CanAssign(ctx context.Context, taskID, volunteerID int64) (Decision, error) {
	var resp Decision
	endpoint := fmt.Sprintf("v0/tasks/%d/can-assign?volunteer_id=%d", taskID, volunteerID)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Assign assigns the volunteer to the task.
func (c *Client) Assign(ctx context.Context, taskID, volunteerID int64) (Assignment, error) {
	body := map[string]any{"volunteer_id": volunteerID}
	var resp Assignment
	endpoint := fmt.Sprintf("v0/tasks/%d/assignments", taskID)
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Unassign removes the volunteer from the task.
func (c *Client) Unassign(ctx context.Context, taskID, volunteerID int64) error {
	endpoint := fmt.Sprintf("v0/tasks/%d/assignments/%d", taskID, volunteerID)
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// CompleteTask completes the task and credits its assignees.
func (c *Client) CompleteTask(ctx context.Context, taskID int64) (CompletionResult, error) {
	var resp CompletionResult
	endpoint := fmt.Sprintf("v0/tasks/%d/complete", taskID)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Report returns the roster report grouped by status.
func (c *Client) Report(ctx context.Context) (StatusReport, error) {
	var resp StatusReport
	err := c.do(ctx, http.MethodGet, "v0/report", nil, &resp)
	return resp, err
}

// Reset closes the tracking period ending on the given date.
func (c *Client) Reset(ctx context.Context, endDate string) (ResetResult, error) {
	var resp ResetResult
	err := c.do(ctx, http.MethodPost, "v0/reset", map[string]any{"end_date": endDate}, &resp)
	return resp, err
}

// Journal returns recent journal entries.
func (c *Client) Journal(ctx context.Context, n int) ([]JournalEntry, error) {
	endpoint := "v0/log"
	if n > 0 {
		endpoint = fmt.Sprintf("%s?n=%d", endpoint, n)
	}
	var resp []JournalEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
