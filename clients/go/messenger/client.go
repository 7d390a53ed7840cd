// Package messenger provides a client for the messenger HTTP API.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a messenger API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new messenger client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messenger error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Message is a stored message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is an entry of a user's conversation list.
type Conversation struct {
	ID                 int64     `json:"id"`
	User1ID            int64     `json:"user1_id"`
	User2ID            int64     `json:"user2_id"`
	OtherUserID        int64     `json:"other_user_id"`
	LastMessageAt      time.Time `json:"last_message_at"`
	LastMessageContent string    `json:"last_message_content"`
}

// ConversationSummary is a conversation's metadata. Last-message fields
// are nil until the first message lands.
type ConversationSummary struct {
	ID                 int64      `json:"id"`
	User1ID            int64      `json:"user1_id"`
	User2ID            int64      `json:"user2_id"`
	CreatedAt          time.Time  `json:"created_at"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	LastMessageContent *string    `json:"last_message_content"`
}

// MessagesPage is one page of a conversation's messages.
type MessagesPage struct {
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Data  []Message `json:"data"`
}

// ConversationsPage is one page of a user's conversations.
type ConversationsPage struct {
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Data  []Conversation `json:"data"`
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

// SendMessage sends a message, creating the conversation on first contact.
func (c *Client) SendMessage(ctx context.Context, senderID, receiverID int64, content string) (*Message, error) {
	var msg Message
	req := SendMessageRequest{SenderID: senderID, ReceiverID: receiverID, Content: content}
	if err := c.doRequest(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// GetMessages lists a conversation's messages, newest first.
// A non-zero before restricts the list to messages created earlier.
func (c *Client) GetMessages(ctx context.Context, conversationID int64, page, limit int, before time.Time) (*MessagesPage, error) {
	q := pageQuery(page, limit)
	path := fmt.Sprintf("/api/messages/conversation/%d", conversationID)
	if !before.IsZero() {
		path += "/before"
		q.Set("before_timestamp", before.UTC().Format(time.RFC3339Nano))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp MessagesPage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetUserConversations lists a user's conversations, most recent first.
func (c *Client) GetUserConversations(ctx context.Context, userID int64, page, limit int) (*ConversationsPage, error) {
	path := fmt.Sprintf("/api/conversations/user/%d", userID)
	if q := pageQuery(page, limit); len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ConversationsPage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConversation fetches a conversation summary.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*ConversationSummary, error) {
	var resp ConversationSummary
	path := fmt.Sprintf("/api/conversations/%d", conversationID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
