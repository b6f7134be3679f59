package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tchandler/eventworks/internal/server/events"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

// DefaultBaseURL is used when no API base is configured.
const DefaultBaseURL = "http://127.0.0.1:7788"

const apiKeyHeader = "X-Eventworks-API-Key"

// Client wraps REST access to the eventworksd API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	// streamClient has no timeout; streams run until their context ends.
	streamClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithAPIKey sends key on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// New creates a client with the provided base URL (e.g. http://127.0.0.1:7788).
func New(rawURL string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultBaseURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", parsed.Scheme)
	}
	c := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Event is the envelope delivered by publish and stream endpoints.
type Event = events.Envelope

// ChannelStats mirrors the registry snapshot served by the daemon.
type ChannelStats = eventworks.ChannelStats

// HistoryEntry is one journal row.
type HistoryEntry struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"event_id"`
	Channel     string          `json:"channel"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// ErrAPI carries a non-2xx response.
type ErrAPI struct {
	StatusCode int
	Message    string
}

func (e *ErrAPI) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: http %d", e.StatusCode)
	}
	return fmt.Sprintf("client: http %d: %s", e.StatusCode, e.Message)
}

// Publish posts payload (raw JSON, may be empty) to channel/topic.
func (c *Client) Publish(ctx context.Context, channel, topic string, payload json.RawMessage) (*Event, error) {
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, fmt.Errorf("client: payload is not valid JSON")
	}
	req, err := c.newRequest(ctx, http.MethodPost, topicPath(channel, topic, "events"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	var event Event
	if err := c.do(req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListChannels returns the daemon's registry snapshot.
func (c *Client) ListChannels(ctx context.Context) ([]ChannelStats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/channels", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Channels []ChannelStats `json:"channels"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// History lists the most recent journal entries for channel/topic, oldest
// first. limit <= 0 uses the server default.
func (c *Client) History(ctx context.Context, channel, topic string, limit int) ([]HistoryEntry, error) {
	path := topicPath(channel, topic, "history")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Entries []HistoryEntry `json:"entries"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ClearTopic removes every subscription registered on channel/topic.
func (c *Client) ClearTopic(ctx context.Context, channel, topic string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, topicPath(channel, topic, "subscriptions"), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ClearChannel removes every subscription registered on channel.
func (c *Client) ClearChannel(ctx context.Context, channel string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/channels/"+channelSegment(channel)+"/subscriptions", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// OpenAPI fetches the daemon's OpenAPI document.
func (c *Client) OpenAPI(ctx context.Context) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/openapi.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read openapi: %w", err)
	}
	return data, nil
}

// Watch streams events on channel/topic over SSE and invokes handler for each
// one until the context is cancelled or the server closes the connection.
func (c *Client) Watch(ctx context.Context, channel, topic string, handler func(Event)) error {
	req, err := c.newRequest(ctx, http.MethodGet, topicPath(channel, topic, "events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: watch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return fmt.Errorf("client: decode event: %w", err)
		}
		if handler != nil {
			handler(event)
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return fmt.Errorf("client: event stream error: %w", err)
		}
	}
	return ctx.Err()
}

// WatchWebSocket is Watch over the daemon's WebSocket endpoint.
func (c *Client) WatchWebSocket(ctx context.Context, channel, topic string, handler func(Event)) error {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimSuffix(wsURL.Path, "/") + "/ws/v1/channels/" + channelSegment(channel) + "/topics/" + url.PathEscape(topic)

	header := http.Header{}
	if c.apiKey != "" {
		header.Set(apiKeyHeader, c.apiKey)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("client: websocket dial: http %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("client: websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client: websocket read: %w", err)
		}
		if handler != nil {
			handler(event)
		}
	}
}

func topicPath(channel, topic, leaf string) string {
	return "/api/v1/channels/" + channelSegment(channel) + "/topics/" + url.PathEscape(topic) + "/" + leaf
}

func channelSegment(channel string) string {
	if channel == "" {
		return events.DefaultChannelAlias
	}
	return url.PathEscape(channel)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("client: parse path: %w", err)
	}
	resolved := c.baseURL.ResolveReference(ref)
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), body)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &ErrAPI{StatusCode: resp.StatusCode}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if msg, ok := body["error"].(string); ok {
			apiErr.Message = msg
		}
	}
	return apiErr
}

// IsStatus reports whether err is an API error with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *ErrAPI
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
