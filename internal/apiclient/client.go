// Package apiclient is the Go client for the vaihub HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yoockh/vaihub/internal/models"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client talks to one vaihub server on behalf of the signed-in user.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// New creates a client. tokens may be nil for anonymous calls like /ping.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// APIError is a non-2xx answer. Message comes from either {"message"} or the
// privileged endpoints' {"error"}.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status of an APIError in err's chain, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// doRequest performs a JSON request and decodes a 2xx body into out.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		tok, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("error getting access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Code: eb.Code, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding %s response: %w", endpoint, err)
	}
	return nil
}

// FetchProfile loads the caller's profile. userID must match the token's
// subject; a mismatch means the token belongs to someone else.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := c.doRequest(ctx, http.MethodGet, "/profiles/me", nil, nil, &p); err != nil {
		return nil, err
	}
	if p.ID != userID {
		return nil, fmt.Errorf("profile %q does not belong to user %q", p.ID, userID)
	}
	return &p, nil
}

func (c *Client) UpgradeSubscription(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.doRequest(ctx, http.MethodPost, "/subscription/upgrade", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) AdminOverview(ctx context.Context, query string) (*models.AdminOverview, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	var out models.AdminOverview
	if err := c.doRequest(ctx, http.MethodGet, "/admin/overview", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) action(ctx context.Context, name string, body any) (string, error) {
	var out models.ActionResult
	if err := c.doRequest(ctx, http.MethodPost, "/functions/v1/"+name, nil, body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) SetUserRole(ctx context.Context, req models.SetRoleRequest) (string, error) {
	return c.action(ctx, "set-user-role", req)
}

func (c *Client) BanUser(ctx context.Context, req models.BanRequest) (string, error) {
	return c.action(ctx, "ban-user", req)
}

func (c *Client) DeleteService(ctx context.Context, req models.DeleteServiceRequest) (string, error) {
	return c.action(ctx, "delete-service", req)
}

// Ask sends a whole transcript and returns the assistant's next turn without
// storing anything server side.
func (c *Client) Ask(ctx context.Context, turns []models.ChatTurn) (models.ChatTurn, error) {
	var out models.ChatTurn
	err := c.doRequest(ctx, http.MethodPost, "/functions/v1/ai-assistant", nil,
		map[string]any{"messages": turns}, &out)
	return out, err
}

// Exchange is one stored user turn and the assistant's answer to it.
type Exchange struct {
	Conversation     models.Conversation     `json:"conversation"`
	UserMessage      models.AssistantMessage `json:"user_message"`
	AssistantMessage models.AssistantMessage `json:"assistant_message"`
}

// SendAssistantMessage appends content to a stored conversation, or starts a
// new one when conversationID is empty.
func (c *Client) SendAssistantMessage(ctx context.Context, conversationID, content string) (*Exchange, error) {
	var out Exchange
	body := map[string]string{"conversation_id": conversationID, "content": content}
	if err := c.doRequest(ctx, http.MethodPost, "/assistant/messages", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := c.doRequest(ctx, http.MethodGet, "/assistant/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListCourses(ctx context.Context) ([]models.CourseWithProgress, error) {
	var out []models.CourseWithProgress
	if err := c.doRequest(ctx, http.MethodGet, "/courses", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
