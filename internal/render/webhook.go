package render

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"

	"zbxbridge/internal/notifier"
	logx "zbxbridge/pkg/logx"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	// Attempts includes the first try; 5xx responses and transport errors
	// are retried.
	Attempts int
	AppName  string
	// Sticky and ExpireTimeout are passed through for desktop-style sinks.
	Sticky        bool
	ExpireTimeout time.Duration
}

// WebhookPayload is the JSON document POSTed for each incident.
type WebhookPayload struct {
	App          string `json:"app"`
	EventID      string `json:"eventid"`
	Severity     string `json:"severity"`
	SeverityCode int    `json:"severity_code"`
	Urgency      string `json:"urgency"`
	Host         string `json:"host"`
	Name         string `json:"name"`
	Summary      string `json:"summary"`
	Body         string `json:"body"`
	Acknowledged bool   `json:"acknowledged"`
	Clock        int64  `json:"clock"`
	LastChange   int64  `json:"lastchange"`
	OpenURL      string `json:"open_url,omitempty"`
	LatencyMS    *int64 `json:"latency_ms,omitempty"`
	Sticky       bool   `json:"sticky,omitempty"`
	ExpireMS     int64  `json:"expire_ms,omitempty"`
}

type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
	log    logx.Logger
}

func NewWebhook(cfg WebhookConfig, client *http.Client, log logx.Logger) (*Webhook, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Webhook{cfg: cfg, client: client, log: log.With(logx.String("comp", "render.webhook"))}, nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) payload(it notifier.Item) WebhookPayload {
	p := WebhookPayload{
		App:          w.cfg.AppName,
		EventID:      it.Problem.EventID,
		Severity:     it.Problem.Severity.String(),
		SeverityCode: int(it.Problem.Severity),
		Urgency:      it.Urgency(),
		Host:         it.HostName(),
		Name:         it.Problem.Name,
		Summary:      it.Summary(),
		Body:         it.Body(),
		Acknowledged: it.Problem.Acknowledged,
		Clock:        it.Problem.Clock,
		LastChange:   it.Problem.LastChange,
		OpenURL:      it.OpenURL,
		Sticky:       w.cfg.Sticky,
		ExpireMS:     w.cfg.ExpireTimeout.Milliseconds(),
	}
	if it.HasLatency {
		ms := it.Latency.Milliseconds()
		p.LatencyMS = &ms
	}
	return p
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (w *Webhook) Render(ctx context.Context, it notifier.Item, _ notifier.AckFunc) error {
	body, err := json.Marshal(w.payload(it))
	if err != nil {
		return errors.Wrap(err, "marshal webhook payload")
	}

	op := func() (struct{}, error) {
		return struct{}{}, w.post(ctx, body)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(w.cfg.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.log.Debug("webhook post failed; retrying", logx.String("eventid", it.Problem.EventID), logx.Duration("delay", next), logx.Err(err))
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return err
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "webhook request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.cfg.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "webhook post")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return errors.Newf("webhook status %d", resp.StatusCode)
	default:
		return backoff.Permanent(errors.Newf("webhook status %d", resp.StatusCode))
	}
}
