// Package upstream talks to the Osvita schedule widget service.
//
// Every call is a GET on <base>/<action> with the institution id, a JSONP
// callback name and a cache-busting nonce appended. Responses may arrive
// wrapped in a JSONP callback and in a {"d": ...} envelope; both are removed
// before the payload reaches callers.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/garyellow/osvita-occupancy/internal/config"
	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
)

const maxResponseBytes = 16 << 20

// Params are action parameters. String values are sent quoted.
type Params map[string]any

// Options configures a Client.
type Options struct {
	BaseURL    string
	VuzID      int
	Timeout    time.Duration
	MaxRetries int
	RPS        float64 // 0 disables rate limiting
	Burst      int
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Client calls the upstream service. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	vuzID      int
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	now        func() time.Time
	flight     singleflight.Group
}

// NewClient creates a client from opts, filling defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = config.UpstreamRequest
	}
	if opts.VuzID == 0 {
		opts.VuzID = config.DefaultVuzID
	}
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultUpstreamBaseURL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		vuzID:      opts.VuzID,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		limiter:    limiter,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// Values renders params as a query with strings quoted the way the widget
// service expects.
func (p Params) Values() url.Values {
	q := make(url.Values, len(p))
	for k, v := range p {
		q.Set(k, quoteParam(v))
	}
	return q
}

// giveStudyTimes returns the aGiveStudyTimes value for action and whether
// the parameter is sent at all.
func giveStudyTimes(action string) (string, bool) {
	switch {
	case action == ActionStudyGroups:
		return "false", true
	case strings.HasPrefix(action, "GetScheduleData"), action == ActionEmployees:
		return "", false
	default:
		return "true", true
	}
}

// buildURL decorates params for action. The JSONP name and nonce change on
// every call, which is why the response cache ignores them.
func (c *Client) buildURL(action string, params Params) string {
	ms := strconv.FormatInt(c.now().UnixMilli(), 10)

	q := url.Values{}
	q.Set("aVuzID", strconv.Itoa(c.vuzID))
	if v, ok := giveStudyTimes(action); ok {
		q.Set("aGiveStudyTimes", v)
	}
	q.Set("callback", "jsonp"+ms)
	q.Set("_", ms)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, quoteParam(params[k]))
	}

	return c.baseURL + "/" + url.PathEscape(action) + "?" + q.Encode()
}

// Call performs action with params and returns the HTTP status and the
// unwrapped JSON payload. Every failure is an *errors.UpstreamError.
func (c *Client) Call(ctx context.Context, action string, params Params) (int, json.RawMessage, error) {
	return c.CallRaw(ctx, action, c.buildURL(action, params))
}

// Forward performs action with caller-supplied query parameters, used by
// the pass-through endpoint. Only the institution id, JSONP name and nonce
// are added when missing.
func (c *Client) Forward(ctx context.Context, action string, query url.Values) (int, json.RawMessage, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if q.Get("aVuzID") == "" {
		q.Set("aVuzID", strconv.Itoa(c.vuzID))
	}
	if _, ok := q["aGiveStudyTimes"]; !ok {
		if v, ok := giveStudyTimes(action); ok {
			q.Set("aGiveStudyTimes", v)
		}
	}
	ms := strconv.FormatInt(c.now().UnixMilli(), 10)
	q.Set("callback", "jsonp"+ms)
	q.Set("_", ms)

	return c.CallRaw(ctx, action, c.baseURL+"/"+url.PathEscape(action)+"?"+q.Encode())
}

// CallRaw fetches rawURL with retry, rate limiting and per-attempt timeout.
func (c *Client) CallRaw(ctx context.Context, action, rawURL string) (int, json.RawMessage, error) {
	start := time.Now()
	var (
		status  int
		payload json.RawMessage
	)

	err := RetryWithBackoff(ctx, c.maxRetries, config.UpstreamRetryInitial, config.UpstreamRetryMax, func() error {
		var err error
		status, payload, err = c.attempt(ctx, action, rawURL)
		return err
	})

	c.metrics.RecordUpstreamRequest(action, statusLabel(status, err), time.Since(start).Seconds())

	if err != nil {
		var ue *apperrors.UpstreamError
		if !errors.As(err, &ue) {
			err = apperrors.NewUpstreamError(action, status, err)
		}
		slog.DebugContext(ctx, "upstream call failed",
			"action", action,
			"status", status,
			"error", err,
		)
		return status, nil, err
	}
	return status, payload, nil
}

func (c *Client) attempt(ctx context.Context, action, rawURL string) (int, json.RawMessage, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, permanent(err)
		}
		c.metrics.RecordRateLimiterWait("upstream", time.Since(waitStart).Seconds())
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", uarand.GetRandom())
	req.Header.Set("Accept", "application/json, text/javascript, */*;q=0.1")
	req.Header.Set("Accept-Language", "uk-UA,uk;q=0.9,en;q=0.6")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, permanent(ctx.Err())
		}
		return 0, nil, apperrors.NewUpstreamError(action, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, apperrors.NewUpstreamError(action, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		uerr := apperrors.NewUpstreamError(action, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return resp.StatusCode, nil, uerr
		default:
			return resp.StatusCode, nil, permanent(uerr)
		}
	}

	payload, err := Unwrap(body)
	if err != nil {
		return resp.StatusCode, nil, permanent(apperrors.NewUpstreamError(action, resp.StatusCode, err))
	}
	return resp.StatusCode, payload, nil
}

func statusLabel(status int, err error) string {
	if err == nil {
		return "success"
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timeout"
	}
	if status > 0 {
		return "http_" + strconv.Itoa(status)
	}
	return "error"
}
