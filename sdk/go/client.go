package pactlinesdk

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

// Client is a minimal Pactline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
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

// Contract represents the API contract model.
type Contract struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	CreatedBy    string        `json:"createdBy"`
	Participants []string      `json:"participants"`
	Status       string        `json:"status"`
	Conditions   []Condition   `json:"conditions"`
	Counterparts []Counterpart `json:"counterparts"`
	CreatedAt    string        `json:"createdAt"`
	UpdatedAt    string        `json:"updatedAt"`
}

type Condition struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	AssignedTo  string   `json:"assignedTo"`
	Status      string   `json:"status"`
	CompletedAt *string  `json:"completedAt"`
	VerifiedBy  []string `json:"verifiedBy"`
}

type Counterpart struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	ProvidedBy       string   `json:"providedBy"`
	Status           string   `json:"status"`
	CompletedAt      *string  `json:"completedAt"`
	VerifiedBy       []string `json:"verifiedBy"`
	LinkedConditions []string `json:"linkedConditions"`
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	IsAdmin     bool   `json:"isAdmin"`
}

type Invitation struct {
	ID          string  `json:"id"`
	FromUser    string  `json:"fromUser"`
	ToUser      string  `json:"toUser"`
	ToEmail     string  `json:"toEmail"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt"`
	RespondedAt *string `json:"respondedAt"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ContractID string `json:"contractId"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payload"`
}

// ItemDraft describes a condition or counterpart for contract creation.
type ItemDraft struct {
	Description string `json:"description"`
	AssignedTo  string `json:"assignedTo,omitempty"`
	ProvidedBy  string `json:"providedBy,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateContract creates a pending contract with a counterpart user.
func (c *Client) CreateContract(ctx context.Context, title, counterpartUserID string, conditions, counterparts []ItemDraft) (Contract, error) {
	body := map[string]any{
		"title":             title,
		"counterpartUserId": counterpartUserID,
		"conditions":        conditions,
		"counterparts":      counterparts,
	}
	var resp Contract
	err := c.do(ctx, http.MethodPost, "contracts", body, &resp)
	return resp, err
}

// ListContracts returns the caller's contracts.
func (c *Client) ListContracts(ctx context.Context) ([]Contract, error) {
	var resp []Contract
	err := c.do(ctx, http.MethodGet, "contracts", nil, &resp)
	return resp, err
}

// GetContract fetches a contract by id.
func (c *Client) GetContract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, "contracts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Activate moves a pending contract to active.
func (c *Client) Activate(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("contracts/%s/activate", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// CompleteCondition marks one condition done and returns the fresh contract.
func (c *Client) CompleteCondition(ctx context.Context, contractID, conditionID string) (Contract, error) {
	var resp Contract
	endpoint := fmt.Sprintf("contracts/%s/conditions/%s/complete", url.PathEscape(contractID), url.PathEscape(conditionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CompleteCounterpart marks one counterpart done and returns the fresh contract.
func (c *Client) CompleteCounterpart(ctx context.Context, contractID, counterpartID string) (Contract, error) {
	var resp Contract
	endpoint := fmt.Sprintf("contracts/%s/counterparts/%s/complete", url.PathEscape(contractID), url.PathEscape(counterpartID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// SearchUsers looks up users by email prefix.
func (c *Client) SearchUsers(ctx context.Context, prefix string) ([]User, error) {
	var resp []User
	err := c.do(ctx, http.MethodGet, "users/search?q="+url.QueryEscape(prefix), nil, &resp)
	return resp, err
}

// SendInvitation invites a contact by email.
func (c *Client) SendInvitation(ctx context.Context, email string) (Invitation, error) {
	var resp Invitation
	err := c.do(ctx, http.MethodPost, "invitations", map[string]any{"email": email}, &resp)
	return resp, err
}

// RespondInvitation accepts or rejects an invitation.
func (c *Client) RespondInvitation(ctx context.Context, id string, accept bool) (Invitation, error) {
	var resp Invitation
	endpoint := fmt.Sprintf("invitations/%s/respond", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"accept": accept}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
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

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
