// Package fetcher retrieves fresh node-type definitions from the backend.
//
// Fetch never returns an error or panics past its boundary: every failure is
// classified into an Outcome so that one bad type id cannot abort a batch.
// Consecutive transport failures trip a circuit breaker, after which fetches
// fail fast with OutcomeTransport until the cooldown elapses.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/nodetype"
)

// Outcome classifies the result of one fetch.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeHTTPError
	OutcomeTransport
	OutcomeMalformed
	// OutcomeInternal marks a panic recovered inside Fetch.
	OutcomeInternal
)

// String implements fmt.Stringer. The values are used as metric labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeTransport:
		return "transport"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeInternal:
		return "internal"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

var (
	ErrNotFound   = errors.New("definition not found")
	ErrHTTPStatus = errors.New("unexpected http status")
	ErrTransport  = errors.New("transport failure")
	ErrMalformed  = errors.New("malformed response")
	ErrInternal   = errors.New("internal fetch failure")
)

// maxLoggedBody bounds how much of a bad response body is kept for logs.
const maxLoggedBody = 512

// Result is the classified outcome of one fetch.
type Result struct {
	TypeID     nodetype.TypeID
	Outcome    Outcome
	Definition *nodetype.Definition
	StatusCode int
	// Err wraps one of the package sentinel errors when Outcome is not OK.
	Err error
	// Body holds the start of the response body for non-OK outcomes.
	Body string
}

// OK reports whether a definition was retrieved.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Config configures a Fetcher.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

// Fetcher requests definitions over HTTP.
type Fetcher struct {
	base    *url.URL
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New creates a Fetcher for the backend at cfg.BaseURL.
func New(cfg Config) (*Fetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must use http or https", cfg.BaseURL)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &Fetcher{
		base:   base,
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "object_info",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
		}),
	}, nil
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// response is what travels through the breaker.
type response struct {
	status int
	body   []byte
}

// Fetch requests the definition of id. It always returns a Result.
func (f *Fetcher) Fetch(ctx context.Context, id nodetype.TypeID) (res Result) {
	logger := ctxlog.FromContext(ctx).With("type_id", id)
	res.TypeID = id

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				TypeID:  id,
				Outcome: OutcomeInternal,
				Err:     fmt.Errorf("%w: panic during fetch: %v", ErrInternal, r),
			}
			logger.Error("Definition fetch panicked.", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	endpoint := f.endpoint(id)
	logger.Debug("Fetching type definition.", "url", endpoint.String())

	out, err := f.breaker.Execute(func() (any, error) {
		return f.do(ctx, endpoint.String())
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			res.Outcome = OutcomeTransport
			res.Err = fmt.Errorf("%w: backend circuit open: %v", ErrTransport, err)
			logger.Warn("Definition fetch skipped, backend circuit is open.")
			return res
		}
		var resp *response
		if r, ok := out.(*response); ok {
			resp = r
		}
		if resp == nil {
			res.Outcome = OutcomeTransport
			res.Err = fmt.Errorf("%w: %v", ErrTransport, err)
			logger.Error("Definition fetch failed.", "error", err)
			return res
		}
		// 5xx responses come back through the breaker as failures.
		return f.classifyStatus(logger, res, resp)
	}

	resp := out.(*response)
	if resp.status != http.StatusOK {
		return f.classifyStatus(logger, res, resp)
	}

	def, err := nodetype.Decode(resp.body, id)
	if err != nil {
		res.Outcome = OutcomeMalformed
		res.StatusCode = resp.status
		res.Err = fmt.Errorf("%w: %w", ErrMalformed, err)
		res.Body = truncate(resp.body)
		logger.Error("Definition response is malformed.", "error", err, "body", res.Body)
		return res
	}

	res.Outcome = OutcomeOK
	res.StatusCode = resp.status
	res.Definition = def
	logger.Debug("Type definition fetched.", "inputs", len(def.WidgetInputs()))
	return res
}

// endpoint builds {base}/object_info/{id}, keeping any "/" inside id escaped.
func (f *Fetcher) endpoint(id nodetype.TypeID) *url.URL {
	u := f.base.JoinPath("object_info", string(id))
	u.RawPath = strings.TrimSuffix(f.base.JoinPath("object_info").EscapedPath(), "/") + "/" + url.PathEscape(string(id))
	return u
}

func (f *Fetcher) do(ctx context.Context, endpoint string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &response{status: resp.StatusCode, body: body}
	if resp.StatusCode >= http.StatusInternalServerError {
		return out, fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return out, nil
}

func (f *Fetcher) classifyStatus(logger *slog.Logger, res Result, resp *response) Result {
	res.StatusCode = resp.status
	res.Body = truncate(resp.body)
	if resp.status == http.StatusNotFound {
		res.Outcome = OutcomeNotFound
		res.Err = fmt.Errorf("%w: status %d", ErrNotFound, resp.status)
	} else {
		res.Outcome = OutcomeHTTPError
		res.Err = fmt.Errorf("%w: status %d", ErrHTTPStatus, resp.status)
	}
	logger.Error("Definition fetch returned an error status.", "status", resp.status, "body", res.Body)
	return res
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
