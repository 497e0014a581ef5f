package zabbix

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	logx "zbxbridge/pkg/logx"
)

const (
	correlationHeader = "x-correlation-id"
	bodyPreviewLimit  = 256
	maxResponseBytes  = 16 << 20
)

// RetryPolicy shapes the per-call retry loop.
type RetryPolicy struct {
	Attempts            int
	InitialInterval     time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxInterval         time.Duration
}

// DefaultRetryPolicy: 3 attempts, 200ms doubling with ±25% jitter, 2s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:            3,
		InitialInterval:     200 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.25,
		MaxInterval:         2 * time.Second,
	}
}

// CallObserver receives one observation per logical call.
type CallObserver interface {
	ObserveCall(method, outcome string, attempts int, took time.Duration)
}

type Options struct {
	URL            string
	Token          string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// Insecure allows plain http endpoints and skips TLS verification.
	Insecure  bool
	UserAgent string
}

type Option func(*Client)

func WithRetryPolicy(p RetryPolicy) Option { return func(c *Client) { c.policy = p } }
func WithObserver(o CallObserver) Option   { return func(c *Client) { c.obs = o } }

// WithHTTPClient replaces the transport; used by tests.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// Client is a JSON-RPC client for the Zabbix API. Safe for concurrent use.
type Client struct {
	endpoint string
	token    string
	ua       string
	timeout  time.Duration
	policy   RetryPolicy
	http     *http.Client
	obs      CallObserver
	log      logx.Logger
}

func NewClient(opts Options, log logx.Logger, extra ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil {
		return nil, errors.Wrap(err, "zabbix.url")
	}
	if u.Host == "" {
		return nil, errors.Newf("zabbix.url: missing host in %q", opts.URL)
	}
	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && opts.Insecure:
	default:
		return nil, errors.Newf("zabbix.url: scheme %q not allowed (https required unless insecure)", u.Scheme)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "zbxbridge"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConnsPerHost: 8,
	}
	if opts.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
	}

	c := &Client{
		endpoint: u.String(),
		token:    opts.Token,
		ua:       opts.UserAgent,
		timeout:  opts.Timeout,
		policy:   DefaultRetryPolicy(),
		http:     &http.Client{Transport: tr, Timeout: opts.Timeout},
		log:      log,
	}
	for _, o := range extra {
		o(c)
	}
	if c.policy.Attempts <= 0 {
		c.policy.Attempts = 1
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
	Auth    string `json:"auth,omitempty"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *rpcError) toAPIError() *APIError {
	msg := e.Message
	if d := rawText(e.Data); d != "" {
		msg += " – " + d
	}
	return &APIError{Code: e.Code, Message: msg}
}

// Call performs one logical remote call, retrying transport, 5xx/408 and
// decode failures, and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	started := time.Now()
	attempts := 0

	op := func() (struct{}, error) {
		attempts++
		err := c.attempt(ctx, method, params, attempts, out)
		if err != nil && !IsRetriable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.policy.Attempts)),
		backoff.WithMaxElapsedTime(c.timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("zabbix call failed; retrying",
				logx.String("method", method),
				logx.Int("attempt", attempts),
				logx.Duration("delay", next),
				logx.Err(err),
			)
		}),
	)
	took := time.Since(started)
	if err == nil {
		c.observe(method, "ok", attempts, took)
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if IsRetriable(err) {
		c.observe(method, "exhausted", attempts, took)
		return &RetryExhaustedError{Method: method, Attempts: attempts, Last: err}
	}
	c.observe(method, "error", attempts, took)
	return err
}

// call is Call with a typed result.
func call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var out T
	err := c.Call(ctx, method, params, &out)
	return out, err
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.Multiplier = c.policy.Multiplier
	b.RandomizationFactor = c.policy.RandomizationFactor
	b.MaxInterval = c.policy.MaxInterval
	return b
}

func (c *Client) observe(method, outcome string, attempts int, took time.Duration) {
	if c.obs != nil {
		c.obs.ObserveCall(method, outcome, attempts, took)
	}
}

func (c *Client) attempt(ctx context.Context, method string, params any, n int, out any) error {
	cid := newCorrelationID()
	started := time.Now()
	log := c.log.With(logx.String("method", method), logx.String("correlation_id", cid), logx.Int("attempt", n))

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: n, Auth: c.token})
	if err != nil {
		return errors.Wrapf(err, "%s: encode request", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "%s: build request", method)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set(correlationHeader, cid)

	log.Debug("zabbix call")
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Method: method, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Method: method, Err: errors.Wrap(err, "read body")}
	}

	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &DecodeError{Method: method, Preview: bodyPreview(data), Err: err}
	}
	if env.Error != nil {
		return env.Error.toAPIError()
	}
	if len(env.Result) == 0 || bytes.Equal(bytes.TrimSpace(env.Result), []byte("null")) {
		return errors.Wrapf(ErrMissingResult, "%s", method)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &DecodeError{Method: method, Preview: bodyPreview(env.Result), Err: err}
		}
	}

	log.Debug("zabbix call succeeded", logx.Duration("latency", time.Since(started)))
	return nil
}

func newCorrelationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func bodyPreview(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	end := min(len(b), bodyPreviewLimit)
	s := strings.ToValidUTF8(string(b[:end]), "�")
	if len(b) > bodyPreviewLimit {
		s += "..."
	}
	return strings.ReplaceAll(s, "\n", `\n`)
}

// rawText renders a JSON value as text: strings unquoted, others verbatim.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
