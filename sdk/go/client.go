package reqlinesdk

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

// Client is a minimal Reqline HTTP API client.
type Client struct {
	BaseURL     string
	SolutionID  string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, solutionID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		SolutionID: solutionID,
		Timeout:    10 * time.Second,
	}
}

// Requirement represents the API requirement model (partial).
type Requirement struct {
	ID         string         `json:"id"`
	Version    int            `json:"version"`
	SolutionID string         `json:"solution_id"`
	Type       string         `json:"type"`
	ReqID      string         `json:"req_id,omitempty"`
	State      string         `json:"state"`
	Props      map[string]any `json:"props"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  string         `json:"created_at"`
	ModifiedBy string         `json:"modified_by"`
	ModifiedAt string         `json:"modified_at"`
}

// Endorsement represents one entry of a requirement's review ledger.
type Endorsement struct {
	ID                 string         `json:"id"`
	RequirementID      string         `json:"requirement_id"`
	RequirementVersion int            `json:"requirement_version"`
	Category           string         `json:"category"`
	Status             string         `json:"status"`
	EndorsedBy         string         `json:"endorsed_by,omitempty"`
	Comments           string         `json:"comments,omitempty"`
	CheckDetails       map[string]any `json:"check_details,omitempty"`
	CreatedAt          string         `json:"created_at"`
	UpdatedAt          string         `json:"updated_at"`
}

// ReviewItem is one line of the review checklist.
type ReviewItem struct {
	ID            string `json:"id,omitempty"`
	Category      string `json:"category"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status"`
	IsRequired    bool   `json:"is_required"`
	CanUserReview bool   `json:"can_user_review"`
}

// ReviewState aggregates the review checklist for a requirement.
type ReviewState struct {
	RequirementID string       `json:"requirement_id"`
	Items         []ReviewItem `json:"items"`
	Overall       string       `json:"overall"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	SolutionID string `json:"solution_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// SolutionStatus summarizes requirement counts and missing minimum types.
type SolutionStatus struct {
	SolutionID     string         `json:"solution_id"`
	StateCounts    map[string]int `json:"state_counts"`
	MissingMinimum []string       `json:"missing_minimum"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ProposeRequirement proposes a new requirement in the client's solution.
func (c *Client) ProposeRequirement(ctx context.Context, reqType string, props map[string]any) (Requirement, error) {
	body := map[string]any{
		"type":  reqType,
		"props": props,
	}
	var resp Requirement
	err := c.do(ctx, http.MethodPost, c.solutionPath("requirements"), body, &resp)
	return resp, err
}

// ListRequirements lists the latest visible version of each requirement,
// optionally filtered by type.
func (c *Client) ListRequirements(ctx context.Context, reqType string) ([]Requirement, error) {
	endpoint := c.solutionPath("requirements")
	if reqType != "" {
		endpoint = fmt.Sprintf("%s?type=%s", endpoint, url.QueryEscape(reqType))
	}
	var resp []Requirement
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetRequirement fetches the latest version of a requirement.
func (c *Client) GetRequirement(ctx context.Context, id string) (Requirement, error) {
	var resp Requirement
	err := c.do(ctx, http.MethodGet, c.requirementPath(id, ""), nil, &resp)
	return resp, err
}

// UpdateRequirement replaces the properties of a proposed requirement.
func (c *Client) UpdateRequirement(ctx context.Context, id string, props map[string]any) (Requirement, error) {
	var resp Requirement
	err := c.do(ctx, http.MethodPatch, c.requirementPath(id, ""), map[string]any{"props": props}, &resp)
	return resp, err
}

// ReviewRequirement submits a proposed requirement for review.
func (c *Client) ReviewRequirement(ctx context.Context, id string) (Requirement, error) {
	return c.transition(ctx, id, "review")
}

// ApproveRequirement approves a reviewed requirement once its ledger is complete.
func (c *Client) ApproveRequirement(ctx context.Context, id string) (Requirement, error) {
	return c.transition(ctx, id, "approve")
}

// RejectRequirement rejects a reviewed requirement.
func (c *Client) RejectRequirement(ctx context.Context, id string) (Requirement, error) {
	return c.transition(ctx, id, "reject")
}

// RestoreRequirement restores a removed requirement.
func (c *Client) RestoreRequirement(ctx context.Context, id string) (Requirement, error) {
	return c.transition(ctx, id, "restore")
}

// ReviseRequirement opens a new proposed version from a rejected requirement.
func (c *Client) ReviseRequirement(ctx context.Context, id string, props map[string]any) (Requirement, error) {
	var resp Requirement
	err := c.do(ctx, http.MethodPost, c.requirementPath(id, "revise"), map[string]any{"props": props}, &resp)
	return resp, err
}

// EditRequirement opens a new draft version of an active requirement.
func (c *Client) EditRequirement(ctx context.Context, id string, props map[string]any) (Requirement, error) {
	var resp Requirement
	err := c.do(ctx, http.MethodPost, c.requirementPath(id, "edit"), map[string]any{"props": props}, &resp)
	return resp, err
}

// RemoveRequirement removes a requirement from its current state.
func (c *Client) RemoveRequirement(ctx context.Context, id string) (Requirement, error) {
	var resp Requirement
	err := c.do(ctx, http.MethodDelete, c.requirementPath(id, ""), nil, &resp)
	return resp, err
}

// Endorse resolves the caller's pending endorsement. Decision is "approve" or
// "reject".
func (c *Client) Endorse(ctx context.Context, id, decision, comments string) (Requirement, error) {
	body := map[string]any{
		"decision": decision,
		"comments": comments,
	}
	var resp Requirement
	err := c.do(ctx, http.MethodPost, c.requirementPath(id, "endorsements"), body, &resp)
	return resp, err
}

// Endorsements lists the review ledger of a requirement's latest version.
func (c *Client) Endorsements(ctx context.Context, id string) ([]Endorsement, error) {
	var resp []Endorsement
	err := c.do(ctx, http.MethodGet, c.requirementPath(id, "endorsements"), nil, &resp)
	return resp, err
}

// GetReviewState returns the review checklist for a requirement.
func (c *Client) GetReviewState(ctx context.Context, id string) (ReviewState, error) {
	var resp ReviewState
	err := c.do(ctx, http.MethodGet, c.requirementPath(id, "review"), nil, &resp)
	return resp, err
}

// RetryCheck reruns a failed or stale automated check.
func (c *Client) RetryCheck(ctx context.Context, id, checkType string) error {
	endpoint := c.requirementPath(id, fmt.Sprintf("checks/%s/retry", url.PathEscape(checkType)))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{}, nil)
}

// Events returns recent events for the client's solution.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.solutionPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// HasActiveRequirements reports whether the solution holds active
// requirements of a type, or of any type when reqType is empty.
func (c *Client) HasActiveRequirements(ctx context.Context, reqType string) (bool, error) {
	endpoint := c.solutionPath("requirements/active")
	if reqType != "" {
		endpoint = fmt.Sprintf("%s?type=%s", endpoint, url.QueryEscape(reqType))
	}
	var resp struct {
		Active bool `json:"active"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Active, err
}

// Status returns the solution's state counts and missing minimum types.
func (c *Client) Status(ctx context.Context) (SolutionStatus, error) {
	var resp SolutionStatus
	err := c.do(ctx, http.MethodGet, c.solutionPath("status"), nil, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, id, verb string) (Requirement, error) {
	var resp Requirement
	err := c.do(ctx, http.MethodPost, c.requirementPath(id, verb), map[string]any{}, &resp)
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
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
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) solutionPath(p string) string {
	solution := url.PathEscape(c.SolutionID)
	return fmt.Sprintf("v0/solutions/%s/%s", solution, strings.TrimLeft(p, "/"))
}

func (c *Client) requirementPath(id, suffix string) string {
	p := fmt.Sprintf("v0/requirements/%s", url.PathEscape(id))
	if suffix != "" {
		p += "/" + strings.TrimLeft(suffix, "/")
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
