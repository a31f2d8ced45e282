// Package backend talks to the remote conversational-AI service.
package backend

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

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the hosted backend the widget ships against.
	DefaultBaseURL = "https://nyansabackb5.onrender.com"

	createPath  = "/api/chat/create"
	messagePath = "/api/chat/%s/message"

	maxBodyBytes = 4 << 20
)

// Client issues the two backend calls. It holds no conversation state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New returns a Client rooted at baseURL; an empty baseURL selects DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     log.With().Str("component", "backend").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateConversation asks the backend for a new conversation id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	const op = "failed to create chat"

	body, err := c.post(ctx, op, c.baseURL+createPath, nil)
	if err != nil {
		return "", err
	}
	c.logger.Debug().RawJSON("body", jsonOrString(body)).Msg("chat created")

	id, ok := ExtractConversationID(body)
	if !ok {
		return "", ErrMissingConversationID
	}
	return id, nil
}

// PostMessage sends text on the given conversation and decodes the reply.
// A 2xx body that matches no known shape is not an error; it comes back as
// ReplyUnrecognized.
func (c *Client) PostMessage(ctx context.Context, conversationID, text string) (Reply, error) {
	const op = "failed to send message"

	if strings.TrimSpace(conversationID) == "" {
		return Reply{}, errors.New("conversation id is required")
	}

	payload, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: text})
	if err != nil {
		return Reply{}, errors.Wrap(err, "encode message")
	}

	endpoint := c.baseURL + fmt.Sprintf(messagePath, url.PathEscape(conversationID))
	body, err := c.post(ctx, op, endpoint, payload)
	if err != nil {
		return Reply{}, err
	}

	reply := DecodeReply(body)
	if reply.Kind == ReplyUnrecognized {
		c.logger.Warn().Str("conversation_id", conversationID).Str("body", truncate(reply.Raw, 512)).Msg("unexpected response format")
	} else {
		c.logger.Debug().Str("conversation_id", conversationID).Stringer("kind", reply.Kind).Msg("message response")
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, op, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, newHTTPError(op, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return body, nil
}

func jsonOrString(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
