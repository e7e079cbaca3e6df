// Package api is the request/response client for the chat server's REST
// endpoints. It implements chat.API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/hay-kot/parley/internal/core/chat"
)

const defaultTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// HTTP overrides the underlying fasthttp client.
	HTTP *fasthttp.Client
}

// Client calls the chat server's REST API.
type Client struct {
	base    string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
	log     zerolog.Logger
}

var _ chat.API = (*Client)(nil)

// New creates a Client.
func New(opts Options, log zerolog.Logger) *Client {
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &fasthttp.Client{
			Name:                "parley",
			MaxIdleConnDuration: time.Minute,
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base:    opts.BaseURL,
		token:   opts.Token,
		timeout: timeout,
		http:    httpClient,
		log:     log,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do issues one request and decodes a 2xx body into out. Non-2xx responses
// become a RequestFailure carrying the server's message.
func (c *Client) do(ctx context.Context, op, method, path string, query map[string]string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range query {
		if v != "" {
			req.URI().QueryArgs().Add(k, v)
		}
	}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := c.http.DoTimeout(req, resp, timeout)
	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("api request")
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return &chat.RequestFailure{Op: op, Message: "The server took too long to respond.", Err: err}
		}
		return &chat.TransportError{Op: op, Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		var eb errorBody
		_ = json.Unmarshal(resp.Body(), &eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		return &chat.RequestFailure{Op: op, Status: status, Message: msg}
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	var rf *chat.RequestFailure
	if errors.As(err, &rf) && rf.Status == fasthttp.StatusNotFound {
		return &chat.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// ListConversations implements chat.API.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out struct {
		Conversations []chat.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, "list conversations", fasthttp.MethodGet, "/api/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// ListMessages implements chat.API.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page chat.Page) ([]chat.Message, error) {
	query := map[string]string{"before": page.Before}
	if page.Limit > 0 {
		query["limit"] = strconv.Itoa(page.Limit)
	}

	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, "list messages", fasthttp.MethodGet, path, query, nil, &out); err != nil {
		return nil, notFound(err, "conversation", conversationID)
	}
	return out.Messages, nil
}

// CreateDirect implements chat.API.
func (c *Client) CreateDirect(ctx context.Context, target string) (chat.Conversation, error) {
	body := map[string]string{"target": target}

	var out struct {
		Conversation chat.Conversation `json:"conversation"`
	}
	if err := c.do(ctx, "create direct conversation", fasthttp.MethodPost, "/api/conversations/direct", nil, body, &out); err != nil {
		return chat.Conversation{}, notFound(err, "user", target)
	}
	return out.Conversation, nil
}

type uploadBody struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	Name      string `json:"name,omitempty"`
	Content   string `json:"content,omitempty"`
	ReplyToID string `json:"replyToId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
}

// UploadMedia implements chat.API.
func (c *Client) UploadMedia(ctx context.Context, upload chat.Upload) (chat.Message, error) {
	body := uploadBody{
		Type:      upload.Attachment.MimeType,
		Data:      upload.Attachment.Data,
		Name:      upload.Attachment.Name,
		Content:   upload.Content,
		ReplyToID: upload.ReplyToID,
		ClientID:  upload.ClientID,
	}

	var out struct {
		Message chat.Message `json:"message"`
	}
	path := "/api/conversations/" + url.PathEscape(upload.ConversationID) + "/media"
	if err := c.do(ctx, "upload media", fasthttp.MethodPost, path, nil, body, &out); err != nil {
		return chat.Message{}, notFound(err, "conversation", upload.ConversationID)
	}
	return out.Message, nil
}

// SetPinned implements chat.API.
func (c *Client) SetPinned(ctx context.Context, conversationID string, messageID *string) (*chat.Message, error) {
	body := struct {
		MessageID *string `json:"messageId"`
	}{MessageID: messageID}

	var out struct {
		PinnedMessage *chat.Message `json:"pinnedMessage"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/pin"
	if err := c.do(ctx, "set pinned message", fasthttp.MethodPut, path, nil, body, &out); err != nil {
		return nil, err
	}
	return out.PinnedMessage, nil
}
