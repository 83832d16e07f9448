// Package api is a thin JSON client for the mail/chat server. Every call is
// assumed idempotent-safe for retry; the client itself never retries, because
// the poll loop effectively does.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dtran/mailflow/internal/model"
)

// Client talks to the mail/chat HTTP API with bearer-token authentication.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a Client for the server at baseURL. The token is the session
// bearer token; log may be nil.
func New(baseURL, token string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// Messages fetches the full snapshot of the given folder.
func (c *Client) Messages(ctx context.Context, folder model.Folder) ([]model.Message, error) {
	var resp emailListResponse
	path := "/api/emails?folder=" + url.QueryEscape(string(folder)) + "&per_page=50"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	msgs := make([]model.Message, 0, len(resp.Emails))
	for _, e := range resp.Emails {
		msgs = append(msgs, e.toModel(folder))
	}
	return msgs, nil
}

// UnreadCount returns the number of unread inbox messages.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp unreadCountResponse
	if err := c.get(ctx, "/api/emails/unread-count", &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// Star sets or clears the star flag on a message.
func (c *Client) Star(ctx context.Context, id string, starred bool) error {
	return c.post(ctx, "/api/email/"+url.PathEscape(id)+"/star",
		map[string]bool{"starred": starred}, nil)
}

// Delete moves a message to trash.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.post(ctx, "/api/email/"+url.PathEscape(id)+"/delete", struct{}{}, nil)
}

// Restore moves a trashed message back to its original folder.
func (c *Client) Restore(ctx context.Context, id string) error {
	return c.post(ctx, "/api/email/"+url.PathEscape(id)+"/restore", struct{}{}, nil)
}

// PermanentDelete removes a message beyond recovery.
func (c *Client) PermanentDelete(ctx context.Context, id string) error {
	return c.post(ctx, "/api/email/"+url.PathEscape(id)+"/permanent-delete", struct{}{}, nil)
}

// EmptyTrash permanently deletes everything in the trash folder.
func (c *Client) EmptyTrash(ctx context.Context) error {
	return c.post(ctx, "/api/emails/empty-trash", struct{}{}, nil)
}

// MarkRead clears the message's unread flag.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.post(ctx, "/api/email/"+url.PathEscape(id)+"/read", struct{}{}, nil)
}

// SaveDraft stores an unsent message server-side.
func (c *Client) SaveDraft(ctx context.Context, d model.Draft) error {
	return c.post(ctx, "/api/drafts", d, nil)
}

// Conversations fetches the conversation list.
func (c *Client) Conversations(ctx context.Context) ([]model.ConversationSummary, error) {
	var resp conversationsResponse
	if err := c.get(ctx, "/api/chat/conversations", &resp); err != nil {
		return nil, err
	}
	out := make([]model.ConversationSummary, 0, len(resp.Conversations))
	for _, w := range resp.Conversations {
		out = append(out, w.toModel())
	}
	return out, nil
}

// History fetches the full message history with one peer.
func (c *Client) History(ctx context.Context, peer string) ([]model.ChatMessage, error) {
	var resp historyResponse
	path := "/api/chat/history?with=" + url.QueryEscape(peer)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	out := make([]model.ChatMessage, 0, len(resp.Messages))
	for _, w := range resp.Messages {
		out = append(out, w.toModel())
	}
	return out, nil
}

// SendText sends a chat message and returns the server-assigned id.
func (c *Client) SendText(ctx context.Context, peer, text string) (string, error) {
	var resp sendResponse
	body := map[string]string{"to": peer, "message": text}
	if err := c.post(ctx, "/api/chat/send", body, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// SendAudio uploads a voice clip as multipart form data and returns the
// server id and hosted audio reference.
func (c *Client) SendAudio(ctx context.Context, peer string, data []byte, format string, durationSec int) (string, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("audio", "voice"+extensionFor(format))
	if err != nil {
		return "", "", fmt.Errorf("building audio form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", "", fmt.Errorf("building audio form: %w", err)
	}
	_ = w.WriteField("to", peer)
	_ = w.WriteField("duration", strconv.Itoa(durationSec))
	_ = w.WriteField("format", format)
	if err := w.Close(); err != nil {
		return "", "", fmt.Errorf("building audio form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat/send-audio", &buf)
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp sendAudioResponse
	if err := c.execute(req, "POST /api/chat/send-audio", &resp); err != nil {
		return "", "", err
	}
	return resp.MessageID, resp.AudioURL, nil
}

// FetchAudio downloads a hosted voice clip. ref may be an absolute URL or a
// server-relative path as returned by SendAudio and History.
func (c *Client) FetchAudio(ctx context.Context, ref string) ([]byte, error) {
	url := ref
	if strings.HasPrefix(ref, "/") {
		url = c.baseURL + ref
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "GET " + ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Op:         "GET " + ref,
			Message:    "fetching audio failed",
		}
	}
	return io.ReadAll(resp.Body)
}

// Online is the fire-and-forget presence ping.
func (c *Client) Online(ctx context.Context) error {
	return c.post(ctx, "/api/chat/online", struct{}{}, nil)
}

// MarkConversationRead zeroes the server-side unread counter for a peer.
func (c *Client) MarkConversationRead(ctx context.Context, peer string) error {
	return c.post(ctx, "/api/chat/mark-read", map[string]string{"with": peer}, nil)
}

// Contacts fetches the contact directory.
func (c *Client) Contacts(ctx context.Context) ([]model.Contact, error) {
	var resp contactsResponse
	if err := c.get(ctx, "/api/contacts", &resp); err != nil {
		return nil, err
	}
	out := make([]model.Contact, 0, len(resp.Contacts))
	for _, w := range resp.Contacts {
		out = append(out, model.Contact{
			Email:     w.Email,
			Name:      w.Name,
			SendCount: w.Count,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// do builds the request, sets auth headers, and decodes the JSON envelope.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	op := method + " " + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.execute(req, op, result)
}

// execute runs the request and maps failures onto the error taxonomy:
// connection errors and 5xx become TransientError, 401 becomes AuthError,
// other 4xx become RequestError. A success envelope with success=false is a
// RequestError carrying the server's message.
func (c *Client) execute(req *http.Request, op string, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{
			Message: fmt.Sprintf("session rejected by %s; log in again", c.baseURL),
		}
	case resp.StatusCode >= 500:
		return &TransientError{
			Op:  op,
			Err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(respBody)),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &RequestError{
			StatusCode: resp.StatusCode,
			Op:         op,
			Message:    truncate(respBody),
		}
	}

	if result == nil {
		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			// Some fire-and-forget endpoints return an empty body.
			return nil
		}
		if !env.Success {
			return &RequestError{StatusCode: resp.StatusCode, Op: op, Message: env.Error}
		}
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	if env, ok := result.(interface{ ok() (bool, string) }); ok {
		if success, msg := env.ok(); !success {
			return &RequestError{StatusCode: resp.StatusCode, Op: op, Message: msg}
		}
	}
	return nil
}

func (e envelope) ok() (bool, string) { return e.Success, e.Error }

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

func extensionFor(format string) string {
	switch {
	case strings.HasPrefix(format, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(format, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(format, "audio/wav"):
		return ".wav"
	}
	return ".bin"
}
