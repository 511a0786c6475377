// Package telegram connects the engine to the Telegram Bot API over long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// requestTimeout bounds calls that are not long polls.
const requestTimeout = 10 * time.Second

// APIError is a Bot API reply with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client calls Bot API methods. The token never appears in returned errors.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(c *Client)

// WithBaseURL points the client at another Bot API server.
func WithBaseURL(u string) ClientOption {
	return ClientOption(func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	})
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return ClientOption(func(c *Client) {
		c.httpClient = hc
	})
}

func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		// Per-call deadlines come from the context; a fixed client timeout
		// would cut long polls short.
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UpdatesRequest holds getUpdates parameters.
type UpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls for updates. Updates below req.Offset are confirmed
// server side and will not be delivered again.
func (c *Client) GetUpdates(ctx context.Context, req UpdatesRequest) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second+requestTimeout)
	defer cancel()

	var updates []Update
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts text to chatID, as a reply to replyTo when it is non-zero.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyTo != 0 {
		body["reply_parameters"] = map[string]any{
			"message_id":                  replyTo,
			"allow_sending_without_reply": true,
		}
	}
	return c.call(ctx, "sendMessage", body, nil)
}

// GetMe returns the bot's own account; it also verifies the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return c.scrub(fmt.Errorf("telegram %s: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.scrub(fmt.Errorf("telegram %s: %w", method, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return c.scrub(fmt.Errorf("telegram %s: read response: %w", method, err))
	}

	var envelope apiResponse[json.RawMessage]
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode response: %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

// scrub removes the token from URLs carried by transport errors.
func (c *Client) scrub(err error) error {
	if c.token == "" {
		return err
	}
	var ue *url.Error
	if stderrors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, c.token, "<redacted>")
	}
	if !strings.Contains(err.Error(), c.token) {
		return err
	}
	return &scrubbedError{msg: strings.ReplaceAll(err.Error(), c.token, "<redacted>"), err: err}
}

// scrubbedError keeps the chain for errors.Is while hiding the token in its text.
type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }
