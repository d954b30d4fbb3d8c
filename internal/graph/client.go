package graph

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

	"golang.org/x/time/rate"
)

const graphAPIBase = "https://graph.microsoft.com/v1.0"

// maxChatPages caps chat enumeration during catch-up (50 chats per page).
const maxChatPages = 2

// Client talks to the Graph REST API. Outbound sends are rate limited so a
// burst of scheduled persona replies cannot trip Graph throttling.
type Client struct {
	baseURL string
	client  *http.Client
	sends   *rate.Limiter
}

// NewClient creates a Graph client.
func NewClient() *Client {
	return &Client{
		baseURL: graphAPIBase,
		client:  &http.Client{Timeout: 60 * time.Second},
		sends:   rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

// SetBaseURL overrides the API base. Tests only.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// FetchMessage retrieves one message from a chat.
func (c *Client) FetchMessage(ctx context.Context, token, chatID, messageID string) (*ChatMessage, error) {
	path := fmt.Sprintf("/chats/%s/messages/%s", url.PathEscape(chatID), url.PathEscape(messageID))
	var msg ChatMessage
	if err := c.get(ctx, token, path, &msg); err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("graph: fetch message: %s: %s", msg.Error.Code, truncate(msg.Error.Message, 200))
	}
	if msg.ChatID == "" {
		msg.ChatID = chatID
	}
	return &msg, nil
}

// SendMessage posts a message into a chat under the identity behind token.
// Returns the sent message id.
func (c *Client) SendMessage(ctx context.Context, token, chatID, content string) (string, error) {
	if err := c.sends.Wait(ctx); err != nil {
		return "", err
	}

	body := map[string]any{"body": map[string]any{"content": content}}
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))

	var sent ChatMessage
	if err := c.post(ctx, token, path, body, &sent); err != nil {
		return "", err
	}
	if sent.ID == "" {
		return "", fmt.Errorf("graph: send returned no message id")
	}
	return sent.ID, nil
}

// ListChats enumerates accessible conversations, following pagination up to
// the safety cap.
func (c *Client) ListChats(ctx context.Context, token string, max int) ([]Chat, error) {
	var chats []Chat
	next := "/chats?$top=50"

	for page := 0; next != "" && page < maxChatPages; page++ {
		var body struct {
			Value    []Chat `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := c.get(ctx, token, next, &body); err != nil {
			return nil, err
		}
		chats = append(chats, body.Value...)
		if len(chats) >= max {
			return chats[:max], nil
		}
		next = strings.TrimPrefix(body.NextLink, c.baseURL)
		if next == body.NextLink {
			// Absolute link to a different host; stop rather than follow.
			break
		}
	}
	return chats, nil
}

// ListMessagesSince returns a chat's messages created strictly after the
// given time. Order is whatever Graph returns; callers needing chronology
// sort for themselves.
func (c *Client) ListMessagesSince(ctx context.Context, token, chatID string, since time.Time) ([]ChatMessage, error) {
	q := url.Values{}
	q.Set("$top", "50")
	q.Set("$filter", fmt.Sprintf("createdDateTime gt %s", since.UTC().Format(time.RFC3339)))
	path := fmt.Sprintf("/chats/%s/messages?%s", url.PathEscape(chatID), q.Encode())

	var body struct {
		Value []ChatMessage `json:"value"`
	}
	if err := c.get(ctx, token, path, &body); err != nil {
		return nil, err
	}
	for i := range body.Value {
		if body.Value[i].ChatID == "" {
			body.Value[i].ChatID = chatID
		}
	}
	return body.Value, nil
}

// CreateSubscription registers a change-notification subscription.
func (c *Client) CreateSubscription(ctx context.Context, token string, sub Subscription) (*Subscription, error) {
	body := map[string]any{
		"changeType":         "created",
		"resource":           sub.Resource,
		"notificationUrl":    sub.NotificationURL,
		"expirationDateTime": sub.ExpirationDateTime.UTC().Format(time.RFC3339),
		"clientState":        sub.ClientState,
	}
	var created Subscription
	if err := c.post(ctx, token, "/subscriptions", body, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("graph: subscription create returned no id")
	}
	return &created, nil
}

// RenewSubscription extends an existing subscription's expiry.
func (c *Client) RenewSubscription(ctx context.Context, token, id string, expires time.Time) (*Subscription, error) {
	body := map[string]any{
		"expirationDateTime": expires.UTC().Format(time.RFC3339),
	}
	var renewed Subscription
	if err := c.do(ctx, http.MethodPatch, token, "/subscriptions/"+url.PathEscape(id), body, &renewed); err != nil {
		return nil, err
	}
	return &renewed, nil
}

// DeleteSubscription removes a subscription. Manual operation only.
func (c *Client) DeleteSubscription(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, token, "/subscriptions/"+url.PathEscape(id), nil, nil)
}

// UploadFile puts a file into the site drive (simple upload, files < 4MB)
// and returns the created item with its share URL.
func (c *Client) UploadFile(ctx context.Context, token, siteID, folder, filename, contentType string, data []byte) (*DriveItem, error) {
	path := fmt.Sprintf("/sites/%s/drive/root:/%s/%s:/content",
		url.PathEscape(siteID), folder, url.PathEscape(filename))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("graph: upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var item DriveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("graph: upload response: %w", err)
	}
	return &item, nil
}

func (c *Client) get(ctx context.Context, token, path string, out any) error {
	return c.do(ctx, http.MethodGet, token, path, nil, out)
}

func (c *Client) post(ctx context.Context, token, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, token, path, body, out)
}

func (c *Client) do(ctx context.Context, method, token, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("graph: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("graph: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("graph: decode response: %w", err)
	}
	return nil
}
