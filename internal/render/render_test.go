package render

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	tele "gopkg.in/telebot.v4"

	"zbxbridge/internal/notifier"
	kit "zbxbridge/internal/transport"
	"zbxbridge/internal/zabbix"
	logx "zbxbridge/pkg/logx"
)

func testItem() notifier.Item {
	host := "web-01"
	return notifier.Item{
		Problem:    zabbix.Problem{EventID: "77", Name: "Disk <90%> full", Severity: zabbix.SeverityHigh, Clock: 100, LastChange: 100},
		Host:       &zabbix.HostMeta{Host: &host, DisplayName: "Web 01"},
		OpenURL:    "https://zbx.example/tr_events.php?eventid=77",
		Latency:    90 * time.Second,
		HasLatency: true,
	}
}

type sentText struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentText
	edits   []string
	editOpt []*kit.SendOptions
	answers []string
	sendErr error
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return kit.MessageRef{}, f.sendErr
	}
	f.sent = append(f.sent, sentText{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	f.editOpt = append(f.editOpt, opt)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func buttons(t *testing.T, opt *kit.SendOptions) []tele.InlineButton {
	t.Helper()
	if opt == nil || opt.ReplyMarkupAdapter == nil {
		return nil
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup type %T", opt.ReplyMarkupAdapter)
	}
	var out []tele.InlineButton
	for _, row := range rm.InlineKeyboard {
		out = append(out, row...)
	}
	return out
}

func TestTelegramRenderAndAck(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	r, err := NewTelegram(TelegramConfig{ChatID: -100, ThreadID: 3, AppName: "Alerting", RatePerSec: 100}, ad, logx.Nop())
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}

	type ackCall struct {
		id     string
		action zabbix.AckAction
		msg    string
	}
	var calls []ackCall
	ack := func(_ context.Context, id string, action zabbix.AckAction, msg string) error {
		calls = append(calls, ackCall{id, action, msg})
		return nil
	}
	if err := r.Render(context.Background(), testItem(), ack); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(ad.sent) != 1 {
		t.Fatalf("sent=%d", len(ad.sent))
	}
	msg := ad.sent[0]
	if msg.to.ChatID != -100 || msg.to.ThreadID != 3 || msg.opt.ParseMode != tele.ModeHTML {
		t.Fatalf("unexpected target/options %+v %+v", msg.to, msg.opt)
	}
	for _, want := range []string{"<b>Alerting</b>", "High – Web 01", "Event #77 [UNACK]", "Disk &lt;90%&gt; full", "1m30s"} {
		if !strings.Contains(msg.text, want) {
			t.Fatalf("text missing %q:\n%s", want, msg.text)
		}
	}
	btns := buttons(t, msg.opt)
	if len(btns) != 2 || btns[0].Text != "Ack" || btns[1].Text != "Open" || btns[1].URL != testItem().OpenURL {
		t.Fatalf("unexpected buttons %+v", btns)
	}

	r.HandleCallback(context.Background(), &kit.Callback{ID: "cb1", ChatID: -100, FromID: 9, FromUsername: "ops", Unique: ButtonAck, Data: "77"})
	if len(calls) != 1 || calls[0].id != "77" || calls[0].action != zabbix.ActionAck || !strings.Contains(calls[0].msg, "@ops") {
		t.Fatalf("ack calls=%+v", calls)
	}
	if len(ad.answers) != 1 || len(ad.edits) != 1 || !strings.Contains(ad.edits[0], "ACK requested by @ops") {
		t.Fatalf("answers=%v edits=%v", ad.answers, ad.edits)
	}
	if !strings.Contains(ad.edits[0], "<b>Alerting</b>") || ad.editOpt[0] == nil || ad.editOpt[0].ParseMode != tele.ModeHTML {
		t.Fatalf("edit lost formatting: %q %+v", ad.edits[0], ad.editOpt[0])
	}
	if btns := buttons(t, ad.editOpt[0]); len(btns) != 1 || btns[0].Text != "Open" {
		t.Fatalf("edited message buttons %+v", btns)
	}
}

func TestTelegramCallbackGuards(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	r, err := NewTelegram(TelegramConfig{ChatID: 1, AllowedUserIDs: []int64{42}, RatePerSec: 100}, ad, logx.Nop())
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	var acks atomic.Int32
	ack := func(context.Context, string, zabbix.AckAction, string) error { acks.Add(1); return nil }
	if err := r.Render(context.Background(), testItem(), ack); err != nil {
		t.Fatalf("Render: %v", err)
	}

	cases := []struct {
		name string
		cb   kit.Callback
	}{
		{"foreign chat", kit.Callback{ChatID: 2, FromID: 42, Unique: ButtonAck, Data: "77"}},
		{"unauthorized user", kit.Callback{ChatID: 1, FromID: 7, Unique: ButtonAck, Data: "77"}},
		{"unknown event", kit.Callback{ChatID: 1, FromID: 42, Unique: ButtonAck, Data: "78"}},
		{"unknown button", kit.Callback{ChatID: 1, FromID: 42, Unique: "other", Data: "77"}},
	}
	for _, tc := range cases {
		cb := tc.cb
		r.HandleCallback(context.Background(), &cb)
		if acks.Load() != 0 {
			t.Fatalf("%s: acknowledgement must not be requested", tc.name)
		}
	}

	// Authorized press through the update loop.
	updates := make(chan kit.Update, 1)
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ChatID: 1, FromID: 42, Unique: ButtonAck, Data: "77"}}
	close(updates)
	if err := r.Run(context.Background(), updates); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if acks.Load() != 1 {
		t.Fatalf("acks=%d want 1", acks.Load())
	}
}

func TestTelegramButtonsByState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		acked       bool
		notifyAcked bool
		url         string
		want        string
	}{
		{"unacked", false, false, "u", "Ack,Open"},
		{"acked with unack", true, true, "u", "Unack,Open"},
		{"acked only link", true, false, "u", "Open"},
		{"no url", false, false, "", "Ack"},
		{"nothing", true, false, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewTelegram(TelegramConfig{ChatID: 1, NotifyAcked: tc.notifyAcked}, &fakeAdapter{}, logx.Nop())
			if err != nil {
				t.Fatalf("NewTelegram: %v", err)
			}
			it := testItem()
			it.Problem.Acknowledged = tc.acked
			it.OpenURL = tc.url
			var names []string
			if rm := r.markup(it, true); rm != nil {
				for _, b := range buttons(t, &kit.SendOptions{ReplyMarkupAdapter: rm}) {
					names = append(names, b.Text)
				}
			}
			if got := strings.Join(names, ","); got != tc.want {
				t.Fatalf("buttons=%q want %q", got, tc.want)
			}
		})
	}
}

func TestWebhookSignsAndRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if sig := r.Header.Get(SignatureHeader); sig != Sign("s3cret", body) {
			t.Errorf("signature=%q", sig)
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL, Secret: "s3cret", Attempts: 3, AppName: "Alerting"}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	if err := wh.Render(context.Background(), testItem(), nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits=%d want 2", hits.Load())
	}
	if got.EventID != "77" || got.SeverityCode != 4 || got.Urgency != "critical" || got.Host != "Web 01" || got.LatencyMS == nil || *got.LatencyMS != 90000 {
		t.Fatalf("payload=%+v", got)
	}
}

func TestWebhookClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get(SignatureHeader) != "" {
			t.Errorf("unsigned webhook must not carry a signature")
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL, Attempts: 3}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	err = wh.Render(context.Background(), testItem(), nil)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err=%v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits=%d want 1", hits.Load())
	}
	if _, err := NewWebhook(WebhookConfig{}, nil, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

type stubRenderer struct {
	name  string
	err   error
	calls int
}

func (s *stubRenderer) Name() string { return s.name }
func (s *stubRenderer) Render(context.Context, notifier.Item, notifier.AckFunc) error {
	s.calls++
	return s.err
}

func TestMultiRunsAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	errA := errors.New("a down")
	a := &stubRenderer{name: "a", err: errA}
	b := &stubRenderer{name: "b"}
	m := NewMulti(a, nil, b)
	if m.Name() != "multi(a,b)" {
		t.Fatalf("Name=%q", m.Name())
	}
	err := m.Render(context.Background(), testItem(), nil)
	if !errors.Is(err, errA) || !strings.Contains(err.Error(), "a: a down") {
		t.Fatalf("err=%v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("calls a=%d b=%d", a.calls, b.calls)
	}
	if err := NewMulti(b).Render(context.Background(), testItem(), nil); err != nil {
		t.Fatalf("all ok must return nil, got %v", err)
	}
}

func TestLogRenderer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewLog(logx.NewWriter(&buf, "info"), "Alerting")
	if err := r.Render(context.Background(), testItem(), nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"summary":"High – Web 01"`, `"urgency":"critical"`, `"eventid":"77"`, `"app":"Alerting"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s: %s", want, out)
		}
	}
}
