// internal/chat/remote/client.go
// HTTP implementation of the chat row and object collaborators, talking to
// the messaging API.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jootiya/jootiya-backend/internal/chat"
	"github.com/jootiya/jootiya-backend/internal/messaging"
	"github.com/rs/zerolog"
)

// APIError is a non-2xx answer of the messaging API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging api: %d %s", e.StatusCode, e.Message)
}

// Client implements chat.MessageRows and chat.ObjectStore
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an API client for baseURL (e.g. https://api.jootiya.com)
// authenticated with an access token.
func NewClient(baseURL, token string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "chat_remote").Logger(),
	}
}

// Backend bundles the client and a realtime dialer for a chat view
func (c *Client) Backend() chat.Backend {
	return chat.Backend{
		Rows:     c,
		Realtime: NewRealtime(c.baseURL, c.token, c.logger),
		Objects:  c,
	}
}

func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var rows []*messaging.Message
	if err := c.doJSON(ctx, http.MethodGet, conversationURL(conversationID, "messages"), nil, &rows); err != nil {
		return nil, err
	}
	return toChatList(rows)
}

func (c *Client) InsertMessage(ctx context.Context, conversationID string, draft chat.Draft) (chat.Message, error) {
	var row messaging.Message
	if err := c.doJSON(ctx, http.MethodPost, conversationURL(conversationID, "messages"), sendRequest(draft), &row); err != nil {
		return chat.Message{}, err
	}
	return toChat(&row)
}

// MarkRead sends no body for a nil ids slice, which the API reads as
// "everything unread".
func (c *Client) MarkRead(ctx context.Context, conversationID string, ids []string) ([]chat.Message, error) {
	var body interface{}
	if ids != nil {
		body = messaging.MarkReadRequest{MessageIDs: ids}
	}

	var rows []*messaging.Message
	if err := c.doJSON(ctx, http.MethodPost, conversationURL(conversationID, "read"), body, &rows); err != nil {
		return nil, err
	}
	return toChatList(rows)
}

func (c *Client) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/uploads", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result messaging.UploadResult
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

func (c *Client) Delete(ctx context.Context, objectURL string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/uploads?url="+url.QueryEscape(objectURL), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func conversationURL(conversationID, suffix string) string {
	return "/api/v1/conversations/" + url.PathEscape(conversationID) + "/" + suffix
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", req.URL.Path).Str("error", env.Error).Msg("API call rejected")
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
