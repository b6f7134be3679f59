// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tchandler/eventworks/internal/server/db"
	"github.com/tchandler/eventworks/internal/server/eventbus"
	"github.com/tchandler/eventworks/internal/server/events"
)

const (
	// APIKeyHeader carries the shared secret when an API key is configured.
	APIKeyHeader = "X-Eventworks-API-Key"

	maxPayloadBytes   = 1 << 20
	streamBuffer      = 64
	keepAliveInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// Options configures the HTTP API.
type Options struct {
	Logger *slog.Logger
	Bus    eventbus.Bus
	// Store backs the publish journal and owns its retention policy. A nil
	// Store disables history.
	Store      db.Store
	APIKey     string
	AllowCIDRs []string
}

// New constructs the HTTP API router backed by the event bus.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	if len(opts.AllowCIDRs) > 0 {
		r.Use(ipFilterMiddleware(logger, opts.AllowCIDRs))
	}

	api := &apiServer{
		logger:   logger,
		bus:      opts.Bus,
		store:    opts.Store,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/openapi.json", gin.WrapF(api.serveOpenAPI))

	secured := r.Group("")
	if opts.APIKey != "" {
		secured.Use(apiKeyMiddleware(opts.APIKey))
	}

	v1 := secured.Group("/api/v1")
	{
		channels := v1.Group("/channels")
		{
			channels.GET("", api.listChannels)
			channels.DELETE("/:channel/subscriptions", api.clearChannel)

			topics := channels.Group("/:channel/topics/:topic")
			{
				topics.POST("/events", api.publishEvent)
				topics.GET("/events", api.streamEvents)
				topics.GET("/history", api.listHistory)
				topics.DELETE("/subscriptions", api.clearTopic)
			}
		}
	}

	secured.GET("/ws/v1/channels/:channel/topics/:topic", api.websocketEvents)

	return r
}

// requestLogger adapts slog to Gin's middleware interface.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		args := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("latency", latency.String()),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			args = append(args, slog.String("error", c.Errors.String()))
			logger.Error("http request", args...)
		} else {
			logger.Info("http request", args...)
		}
	}
}

func ipFilterMiddleware(logger *slog.Logger, cidrs []string) gin.HandlerFunc {
	var networks []*net.IPNet
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			logger.Warn("invalid CIDR", "cidr", raw, "error", err)
			continue
		}
		networks = append(networks, network)
	}
	if len(networks) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid client IP"})
			return
		}
		for _, network := range networks {
			if network.Contains(ip) {
				c.Next()
				return
			}
		}
		logger.Warn("request blocked by CIDR filter", "ip", ip.String())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func apiKeyMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(APIKeyHeader)
		if provided == "" {
			provided = c.Query("api_key")
		}
		if provided != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

type apiServer struct {
	logger   *slog.Logger
	bus      eventbus.Bus
	store    db.Store
	upgrader websocket.Upgrader
}

// HistoryEntry is one journaled publish as served by the history endpoint.
type HistoryEntry struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"event_id"`
	Channel     string          `json:"channel"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// HistoryResponse lists journal entries oldest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

func entryToResponse(entry db.JournalEntry) HistoryEntry {
	return HistoryEntry{
		ID:          entry.ID,
		EventID:     entry.EventID,
		Channel:     entry.Channel,
		Topic:       entry.Topic,
		Payload:     json.RawMessage(entry.Payload),
		PublishedAt: entry.PublishedAt,
	}
}

func routeTarget(c *gin.Context) (channel, topic string) {
	return events.ChannelFromAlias(c.Param("channel")), c.Param("topic")
}

func (api *apiServer) listChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": api.bus.Stats()})
}

func (api *apiServer) publishEvent(c *gin.Context) {
	channel, topic := routeTarget(c)

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(raw) > maxPayloadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	var payload json.RawMessage
	if len(strings.TrimSpace(string(raw))) > 0 {
		if !json.Valid(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be valid JSON"})
			return
		}
		payload = json.RawMessage(raw)
	}

	envelope := events.NewEnvelope(channel, topic, payload)
	ctx := c.Request.Context()
	if err := api.bus.Publish(ctx, channel, topic, envelope); err != nil {
		_ = c.Error(err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	// Subscribers already have the event; a journal failure only costs
	// history.
	if err := api.record(ctx, envelope); err != nil {
		api.logger.Error("journal append", "channel", channel, "topic", topic, "event_id", envelope.ID, "error", err)
		_ = c.Error(err)
	}
	c.JSON(http.StatusAccepted, envelope)
}

func (api *apiServer) record(ctx context.Context, envelope events.Envelope) error {
	if api.store == nil {
		return nil
	}
	_, err := api.store.Record(ctx, &db.JournalEntry{
		EventID:     envelope.ID,
		Channel:     envelope.Channel,
		Topic:       envelope.Topic,
		Payload:     envelope.Payload,
		PublishedAt: envelope.Timestamp,
	})
	return err
}

func (api *apiServer) listHistory(c *gin.Context) {
	if api.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal not available"})
		return
	}
	channel, topic := routeTarget(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, err := api.store.Queries().Journal().List(c.Request.Context(), db.JournalFilter{
		Channel: channel,
		Topic:   topic,
		Limit:   limit,
	})
	if err != nil {
		api.logger.Error("list journal", "channel", channel, "topic", topic, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read journal"})
		return
	}
	resp := HistoryResponse{Entries: make([]HistoryEntry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, entryToResponse(entry))
	}
	c.JSON(http.StatusOK, resp)
}

func (api *apiServer) clearTopic(c *gin.Context) {
	channel, topic := routeTarget(c)
	api.bus.ClearTopic(channel, topic)
	c.Status(http.StatusNoContent)
}

func (api *apiServer) clearChannel(c *gin.Context) {
	api.bus.ClearChannel(events.ChannelFromAlias(c.Param("channel")))
	c.Status(http.StatusNoContent)
}

func (api *apiServer) streamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	channel, topic := routeTarget(c)
	ctx := c.Request.Context()
	eventsCh := make(chan any, streamBuffer)
	unsubscribe, err := api.bus.Subscribe(channel, topic, eventsCh)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": "failed to subscribe"})
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	if _, err := c.Writer.Write([]byte(": subscribed\n\n")); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Writer.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case payload := <-eventsCh:
			envelope := toEnvelope(channel, topic, payload)
			data, err := json.Marshal(envelope)
			if err != nil {
				api.logger.Error("marshal event", "channel", channel, "topic", topic, "error", err)
				continue
			}
			frame := "event: " + envelope.Topic + "\nid: " + envelope.ID + "\ndata: " + string(data) + "\n\n"
			if _, err := c.Writer.Write([]byte(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (api *apiServer) websocketEvents(c *gin.Context) {
	conn, err := api.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Error("ws upgrade", "error", err)
		return
	}
	defer conn.Close()

	channel, topic := routeTarget(c)
	eventsCh := make(chan any, streamBuffer)
	unsubscribe, err := api.bus.Subscribe(channel, topic, eventsCh)
	if err != nil {
		api.logger.Error("ws subscribe", "channel", channel, "topic", topic, "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}
	defer unsubscribe()

	// The read side only exists to notice the peer going away.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-eventsCh:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(toEnvelope(channel, topic, payload)); err != nil {
				return
			}
		}
	}
}

// toEnvelope normalises payloads published in-process (not through the API)
// into the envelope shape stream consumers expect.
func toEnvelope(channel, topic string, payload any) events.Envelope {
	switch v := payload.(type) {
	case events.Envelope:
		return v
	case *events.Envelope:
		if v != nil {
			return *v
		}
	}
	envelope := events.NewEnvelope(channel, topic, nil)
	if payload == nil {
		return envelope
	}
	if data, err := json.Marshal(payload); err == nil {
		envelope.Payload = data
	}
	return envelope
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, eventbus.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
