// Package graph is the Microsoft Graph client used by the relay: message
// fetch/send, chat enumeration, change-notification subscriptions, drive
// uploads, and token acquisition for both the application identity and the
// persona user accounts.
package graph

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ChatMessage is a Teams chat message as returned by Graph.
type ChatMessage struct {
	ID              string           `json:"id"`
	ChatID          string           `json:"chatId,omitempty"`
	CreatedDateTime time.Time        `json:"createdDateTime"`
	Body            ItemBody         `json:"body"`
	From            *MessageFrom     `json:"from,omitempty"`
	ChannelIdentity *ChannelIdentity `json:"channelIdentity,omitempty"`
	Error           *APIError        `json:"error,omitempty"`
}

// ItemBody carries message content, typically HTML.
type ItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content"`
}

// MessageFrom identifies a message sender.
type MessageFrom struct {
	User *Identity `json:"user,omitempty"`
}

// Identity is a Graph user identity.
type Identity struct {
	ID                string `json:"id,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

// ChannelIdentity names the channel a message was posted in; empty for 1:1
// chats.
type ChannelIdentity struct {
	ChannelName string `json:"channelName,omitempty"`
}

// Chat is a conversation summary from /chats.
type Chat struct {
	ID       string `json:"id"`
	Topic    string `json:"topic,omitempty"`
	ChatType string `json:"chatType,omitempty"`
}

// Subscription is a Graph change-notification subscription.
type Subscription struct {
	ID                 string    `json:"id"`
	Resource           string    `json:"resource,omitempty"`
	ChangeType         string    `json:"changeType,omitempty"`
	NotificationURL    string    `json:"notificationUrl,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState,omitempty"`
}

// Notification is one entry of an inbound webhook batch.
type Notification struct {
	SubscriptionID string `json:"subscriptionId,omitempty"`
	ChangeType     string `json:"changeType,omitempty"`
	Resource       string `json:"resource"`
	ClientState    string `json:"clientState,omitempty"`
}

// NotificationBatch is the webhook POST body.
type NotificationBatch struct {
	Value []Notification `json:"value"`
}

// DriveItem is the subset of an upload response the relay uses.
type DriveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
	Size   int64  `json:"size,omitempty"`
}

// APIError is Graph's embedded error object.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPError is a non-2xx response from Graph or the token endpoint. The
// body is truncated before logging.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graph: status %d: %s", e.Status, truncate(e.Body, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// PlainText strips markup from the message body.
func (m *ChatMessage) PlainText() string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(m.Body.Content, ""))
}

// SenderName returns the sender's display name, or "Someone".
func (m *ChatMessage) SenderName() string {
	if m.From != nil && m.From.User != nil && m.From.User.DisplayName != "" {
		return m.From.User.DisplayName
	}
	return "Someone"
}

// SenderKey returns the local part of the sender's address, lower-cased.
// Empty when the message has no user sender (system events, bots).
func (m *ChatMessage) SenderKey() string {
	if m.From == nil || m.From.User == nil {
		return ""
	}
	addr := strings.ToLower(m.From.User.UserPrincipalName)
	if i := strings.Index(addr, "@"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// ChannelName returns the channel the message was posted in, defaulting to
// "Direct" for 1:1 chats.
func (m *ChatMessage) ChannelName() string {
	if m.ChannelIdentity != nil && m.ChannelIdentity.ChannelName != "" {
		return m.ChannelIdentity.ChannelName
	}
	return "Direct"
}
