// Package ticketclient implements the ITSM ticket client: a session-token
// REST client grounded on the same bearer-header request helper pattern
// used for other external REST integrations in this codebase.
package ticketclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Token is an opaque ITSM session token returned by OpenSession.
type Token string

// TicketID is the external ticket identifier. 0 is the "do not create a
// ticket" sentinel the correlator writes when a rule disables ticketing.
type TicketID int

// Severity maps the correlator's internal 1-4 scale onto whatever scale the
// external ITSM uses.
var severityMap = map[int]int{1: 1, 2: 2, 3: 3, 4: 4}

// CreateTicketRequest carries the fields needed to open a new ticket.
type CreateTicketRequest struct {
	Title              string
	Description        string
	Severity           int
	AssignmentGroupUID string
}

// Client is an HTTP-backed TicketClient implementation.
type Client struct {
	baseURL    string
	appToken   string
	userToken  string
	entityUID  string
	httpClient *http.Client
}

// New constructs a Client.
func New(baseURL, appToken, userToken, entityUID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		appToken:   appToken,
		userToken:  userToken,
		entityUID:  entityUID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sessionResponse struct {
	SessionToken string `json:"session_token"`
}

// OpenSession authenticates and returns a session token good for the
// lifetime of one ticket-activity operation.
func (c *Client) OpenSession(ctx context.Context) (Token, error) {
	var resp sessionResponse
	if err := c.request(ctx, http.MethodGet, "/initSession", "", nil, &resp); err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	return Token(resp.SessionToken), nil
}

// CloseSession terminates a session token.
func (c *Client) CloseSession(ctx context.Context, tok Token) error {
	return c.request(ctx, http.MethodGet, "/killSession", string(tok), nil, nil)
}

type createTicketBody struct {
	Input struct {
		Name    string `json:"name"`
		Content string `json:"content"`
		Urgency int    `json:"urgency"`
		GroupID string `json:"itilcategories_id,omitempty"`
	} `json:"input"`
}

type createTicketResponse struct {
	ID int `json:"id"`
}

// Create opens a new ticket, returning its assigned ID.
func (c *Client) Create(ctx context.Context, tok Token, req CreateTicketRequest) (TicketID, error) {
	var body createTicketBody
	body.Input.Name = req.Title
	body.Input.Content = req.Description
	body.Input.Urgency = severityMap[req.Severity]
	body.Input.GroupID = req.AssignmentGroupUID

	var resp createTicketResponse
	if err := c.request(ctx, http.MethodPost, "/Ticket", string(tok), body, &resp); err != nil {
		return 0, fmt.Errorf("create ticket: %w", err)
	}
	return TicketID(resp.ID), nil
}

type commentBody struct {
	Input struct {
		Content string `json:"content"`
		Items   []struct {
			ItemsID int    `json:"items_id"`
			ItemType string `json:"itemtype"`
		} `json:"items_id"`
	} `json:"input"`
}

// Comment posts a follow-up comment onto an existing ticket.
func (c *Client) Comment(ctx context.Context, tok Token, id TicketID, text string) error {
	var body commentBody
	body.Input.Content = text
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/Ticket/%d/ITILFollowup", int(id)), string(tok), body, nil)
}

// Close closes a ticket.
func (c *Client) Close(ctx context.Context, tok Token, id TicketID) error {
	body := map[string]any{"input": map[string]any{"status": 6}}
	return c.request(ctx, http.MethodPut, fmt.Sprintf("/Ticket/%d", int(id)), string(tok), body, nil)
}

func (c *Client) request(ctx context.Context, method, path, sessionToken string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("App-Token", c.appToken)
	if sessionToken != "" {
		req.Header.Set("Session-Token", sessionToken)
	} else {
		req.Header.Set("Authorization", "user_token "+c.userToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ticket API error %d: %s", resp.StatusCode, string(data))
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}
