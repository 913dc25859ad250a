// Package messenger sends replies through the Facebook Messenger Send API.
package messenger

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

// Graph API defaults.
const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v19.0"

	// MaxTextLength is the longest text Messenger accepts in one message.
	MaxTextLength = 2000

	maxErrorBody = 4096
)

// Action is a sender action shown in the recipient's chat.
type Action string

const (
	ActionTypingOn  Action = "typing_on"
	ActionTypingOff Action = "typing_off"
	ActionMarkSeen  Action = "mark_seen"
)

// QuickReply is a button shown under a text message.
type QuickReply struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// APIError is returned for a non-2xx Graph API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the Graph API. Calls are never retried.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces outbound calls to perSecond with the given burst.
// A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New creates a Graph API client.
func New(baseURL, version string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type recipient struct {
	ID string `json:"id"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type attachmentPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type outboundMessage struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
	Attachment   *attachment  `json:"attachment,omitempty"`
}

type sendRequest struct {
	Recipient    recipient        `json:"recipient"`
	Message      *outboundMessage `json:"message,omitempty"`
	SenderAction Action           `json:"sender_action,omitempty"`
}

// SendText sends text, split into several messages when it is longer than
// MaxTextLength. Quick replies are attached to the last part.
func (c *Client) SendText(ctx context.Context, token, recipientID, text string, replies ...QuickReply) error {
	parts := SplitText(text, MaxTextLength)
	for i, part := range parts {
		msg := &outboundMessage{Text: part}
		if i == len(parts)-1 {
			for _, qr := range replies {
				msg.QuickReplies = append(msg.QuickReplies, quickReply{ContentType: "text", Title: qr.Title, Payload: qr.Payload})
			}
		}
		if err := c.send(ctx, token, sendRequest{Recipient: recipient{recipientID}, Message: msg}); err != nil {
			return err
		}
	}
	return nil
}

// SendImage sends an image by URL followed by an optional text message.
func (c *Client) SendImage(ctx context.Context, token, recipientID, imageURL, followup string) error {
	msg := &outboundMessage{Attachment: &attachment{
		Type:    "image",
		Payload: attachmentPayload{URL: imageURL, IsReusable: true},
	}}
	if err := c.send(ctx, token, sendRequest{Recipient: recipient{recipientID}, Message: msg}); err != nil {
		return err
	}
	if followup == "" {
		return nil
	}
	return c.SendText(ctx, token, recipientID, followup)
}

// SendAction sends a sender action such as a typing indicator.
func (c *Client) SendAction(ctx context.Context, token, recipientID string, action Action) error {
	return c.send(ctx, token, sendRequest{Recipient: recipient{recipientID}, SenderAction: action})
}

func (c *Client) send(ctx context.Context, token string, body sendRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/me/messages?access_token=%s", c.baseURL, c.version, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

// UserProfile is the public profile of a page-scoped user.
type UserProfile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Name joins the first and last name.
func (p UserProfile) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// UserProfile looks up the sender's name by page-scoped id.
func (c *Client) UserProfile(ctx context.Context, token, psid string) (UserProfile, error) {
	q := url.Values{}
	q.Set("fields", "first_name,last_name")
	q.Set("access_token", token)
	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.version, url.PathEscape(psid), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return UserProfile{}, fmt.Errorf("failed to create profile request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return UserProfile{}, err
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return UserProfile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return profile, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("send rate limit: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph api response: %w", err)
	}
	return body, nil
}
