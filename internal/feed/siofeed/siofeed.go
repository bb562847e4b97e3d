// Package siofeed reads backend events over socket.io. It registers one
// listener per routed event name and re-encodes the first argument of each
// event as JSON for the router.
package siofeed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/feed"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Config configures a Client.
type Config struct {
	BackendURL         string
	Namespace          string
	Path               string
	InsecureSkipVerify bool
}

// Client is a feed.Source over socket.io.
type Client struct {
	baseURL   string
	namespace string
	path      string
	insecure  bool
}

var _ feed.Source = (*Client)(nil)

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q needs a scheme and host", cfg.BackendURL)
	}
	c := &Client{
		baseURL:   fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		namespace: cfg.Namespace,
		path:      cfg.Path,
		insecure:  cfg.InsecureSkipVerify,
	}
	if c.namespace == "" {
		c.namespace = "/"
	}
	if c.path == "" {
		c.path = "/socket.io/"
	}
	return c, nil
}

// Run connects and dispatches routed events until ctx is cancelled.
// Reconnection is left to the socket.io manager.
func (c *Client) Run(ctx context.Context, router *feed.Router) error {
	ctx, logger := ctxlog.With(ctx, "feed", "socketio", "url", c.baseURL, "namespace", c.namespace)

	opts := socket.DefaultOptions()
	opts.SetPath(c.path)
	if c.insecure {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(c.baseURL, opts)
	io := manager.Socket(c.namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Socket.io feed connected.", "sid", io.Id())
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		logger.Warn("Socket.io connection failed.", "error", firstArg(errs))
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		logger.Warn("Socket.io feed disconnected.", "reason", firstArg(reason))
	})

	for _, name := range router.Names() {
		io.On(types.EventName(name), func(args ...any) {
			payload, err := encodePayload(args)
			if err != nil {
				logger.Warn("Failed to encode socket.io event arguments.", "event", name, "error", err)
				return
			}
			router.Dispatch(ctx, feed.Event{Name: name, Payload: payload})
		})
	}

	io.Connect()
	<-ctx.Done()
	return nil
}

// encodePayload turns the first event argument into JSON. Events without
// arguments encode as null.
func encodePayload(args []any) ([]byte, error) {
	return json.Marshal(firstArg(args))
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
