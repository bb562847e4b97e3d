// Package wsfeed reads backend events from the editor websocket at
// {backend}/ws. Text frames carry {"type": ..., "data": ...}; binary frames
// are preview images and are ignored.
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/feed"
)

// Config configures a Client.
type Config struct {
	// BackendURL is the http(s) base URL of the backend.
	BackendURL     string
	ClientID       string
	ReconnectDelay time.Duration
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client is a feed.Source over a websocket.
type Client struct {
	url    string
	delay  time.Duration
	dialer *websocket.Dialer
}

var _ feed.Source = (*Client)(nil)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// New creates a Client. The backend URL scheme is mapped to ws or wss.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", cfg.BackendURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("backend url %q must use http, https, ws or wss", cfg.BackendURL)
	}
	u = u.JoinPath("ws")
	if cfg.ClientID != "" {
		u.RawQuery = url.Values{"clientId": {cfg.ClientID}}.Encode()
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Client{url: u.String(), delay: delay, dialer: dialer}, nil
}

// URL returns the websocket URL the client dials.
func (c *Client) URL() string {
	return c.url
}

// Run connects, dispatches events to router and reconnects after
// ReconnectDelay when the connection drops. It returns nil once ctx is
// cancelled.
func (c *Client) Run(ctx context.Context, router *feed.Router) error {
	ctx, logger := ctxlog.With(ctx, "feed", "websocket", "url", c.url)

	for {
		err := c.session(ctx, router)
		if ctx.Err() != nil {
			logger.Debug("Websocket feed stopped.")
			return nil
		}
		logger.Warn("Websocket feed disconnected, reconnecting.", "error", err, "delay", c.delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.delay):
		}
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (c *Client) session(ctx context.Context, router *feed.Router) error {
	logger := ctxlog.FromContext(ctx)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	logger.Info("Websocket feed connected.")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("connection closed by backend")
			}
			return fmt.Errorf("read failed: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			logger.Warn("Ignoring undecodable websocket frame.", "error", err)
			continue
		}
		if f.Type == "" {
			logger.Debug("Ignoring websocket frame without a type.")
			continue
		}
		router.Dispatch(ctx, feed.Event{Name: f.Type, Payload: f.Data})
	}
}
