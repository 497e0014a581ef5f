package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"zbxbridge/internal/notifier"
	kit "zbxbridge/internal/transport"
	"zbxbridge/internal/zabbix"
	logx "zbxbridge/pkg/logx"
	"zbxbridge/pkg/tgui"
)

// Callback identifiers carried by the inline buttons.
const (
	ButtonAck   = "zbx_ack"
	ButtonUnack = "zbx_unack"
)

type TelegramConfig struct {
	ChatID   int64
	ThreadID int
	AppName  string
	// OpenLabel is the caption of the link button.
	OpenLabel string
	// NotifyAcked adds an Unack button to acknowledged incidents.
	NotifyAcked bool
	// AllowedUserIDs restricts who may press Ack/Unack. Empty allows any
	// member of the chat.
	AllowedUserIDs []int64
	// RatePerSec paces outgoing messages; Telegram rejects bursts above
	// roughly one message per second per chat.
	RatePerSec int
	// Remember bounds how many sent messages can still be acted on.
	Remember int
}

type sentMessage struct {
	ref  kit.MessageRef
	item notifier.Item
	ack  notifier.AckFunc
}

// Telegram posts incidents to a chat with inline Ack/Unack/Open buttons and
// turns button presses into acknowledgement requests.
type Telegram struct {
	cfg     TelegramConfig
	adapter kit.Adapter
	log     logx.Logger
	limiter *rate.Limiter

	allowed map[int64]struct{}
	sent    *lru.Cache[string, sentMessage] // by event id
}

func NewTelegram(cfg TelegramConfig, adapter kit.Adapter, log logx.Logger) (*Telegram, error) {
	if adapter == nil {
		return nil, errors.New("telegram renderer: adapter is nil")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram renderer: chat id is required")
	}
	if cfg.OpenLabel == "" {
		cfg.OpenLabel = "Open"
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Remember <= 0 {
		cfg.Remember = 512
	}
	sent, err := lru.New[string, sentMessage](cfg.Remember)
	if err != nil {
		return nil, errors.Wrap(err, "telegram renderer")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Telegram{
		cfg:     cfg,
		adapter: adapter,
		log:     log.With(logx.String("comp", "render.telegram")),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sent:    sent,
	}
	if len(cfg.AllowedUserIDs) > 0 {
		t.allowed = make(map[int64]struct{}, len(cfg.AllowedUserIDs))
		for _, id := range cfg.AllowedUserIDs {
			t.allowed[id] = struct{}{}
		}
	}
	return t, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Render(ctx context.Context, it notifier.Item, ack notifier.AckFunc) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram pacing")
	}
	msg := t.message(it, "", true)
	ref, err := t.adapter.SendText(ctx, kit.ChatTarget{ChatID: t.cfg.ChatID, ThreadID: t.cfg.ThreadID}, msg.Text, msg.Opt)
	if err != nil {
		return err
	}
	t.sent.Add(it.Problem.EventID, sentMessage{ref: ref, item: it, ack: ack})
	return nil
}

// bodyLimit leaves room for the header lines and the status footer.
const bodyLimit = tgui.MaxMessageLen - 512

func (t *Telegram) message(it notifier.Item, status string, withActions bool) tgui.Message {
	b := tgui.New()
	if t.cfg.AppName != "" {
		b.Title("", t.cfg.AppName)
	}
	b.Title(severityMark(it.Problem.Severity), it.Summary())
	b.Lines(tgui.TruncRunes(it.Body(), bodyLimit))
	if it.HasLatency {
		b.RawLine(tgui.I(fmt.Sprintf("detected %s ago", it.Latency.Truncate(time.Second))))
	}
	if status != "" {
		b.Blank().Line(status)
	}
	if kb := t.keyboard(it, withActions); kb.Len() > 0 {
		b.Keyboard(kb)
	}
	return b.Build()
}

func severityMark(s zabbix.Severity) string {
	switch s {
	case zabbix.SeverityDisaster:
		return "🟥"
	case zabbix.SeverityHigh:
		return "🟧"
	case zabbix.SeverityAverage:
		return "🟨"
	case zabbix.SeverityWarning:
		return "🟦"
	default:
		return "⬜"
	}
}

// keyboard builds the inline buttons. withActions=false leaves only the
// link button; it is used after an operator has acted.
func (t *Telegram) keyboard(it notifier.Item, withActions bool) *tgui.Inline {
	kb := tgui.NewInline()
	id := it.Problem.EventID
	if withActions && tgui.FitsCallback(ButtonUnack, id) {
		switch {
		case !it.Problem.Acknowledged:
			kb.Add(tgui.DataBtn("Ack", ButtonAck, id))
		case t.cfg.NotifyAcked:
			kb.Add(tgui.DataBtn("Unack", ButtonUnack, id))
		}
	}
	if it.OpenURL != "" {
		kb.Add(tgui.URLBtn(t.cfg.OpenLabel, it.OpenURL))
	}
	return kb
}

// markup is the keyboard as sent, or nil when there are no buttons.
func (t *Telegram) markup(it notifier.Item, withActions bool) *tele.ReplyMarkup {
	return t.keyboard(it, withActions).Markup()
}

// Run consumes button presses until ctx is done or updates is closed.
func (t *Telegram) Run(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateCallback || up.Callback == nil {
				continue
			}
			t.HandleCallback(ctx, up.Callback)
		}
	}
}

// HandleCallback serves one button press.
func (t *Telegram) HandleCallback(ctx context.Context, cb *kit.Callback) {
	var action zabbix.AckAction
	switch cb.Unique {
	case ButtonAck:
		action = zabbix.ActionAck
	case ButtonUnack:
		action = zabbix.ActionUnack
	default:
		return
	}
	log := t.log.With(logx.String("eventid", cb.Data), logx.Int64("user_id", cb.FromID), logx.String("action", action.String()))

	answer := func(text string) {
		if err := t.adapter.AnswerCallback(ctx, cb.ID, text); err != nil {
			log.Debug("answer callback failed", logx.Err(err))
		}
	}
	if cb.ChatID != t.cfg.ChatID {
		log.Warn("button press from unexpected chat", logx.Int64("chat_id", cb.ChatID))
		return
	}
	if t.allowed != nil {
		if _, ok := t.allowed[cb.FromID]; !ok {
			log.Warn("button press from unauthorized user")
			answer("Not allowed")
			return
		}
	}

	sm, ok := t.sent.Get(cb.Data)
	if !ok || sm.ack == nil {
		answer("This notification is too old to act on")
		return
	}

	who := operatorName(cb)
	msg := fmt.Sprintf("%s via Telegram by %s", action, who)
	if err := sm.ack(ctx, cb.Data, action, msg); err != nil {
		log.Warn("acknowledgement not scheduled", logx.Err(err))
		answer("Request failed: " + err.Error())
		return
	}
	log.Info("acknowledgement requested from chat", logx.String("by", who))
	answer("Request sent")

	status := fmt.Sprintf("%s requested by %s", strings.ToUpper(action.String()), who)
	view := t.message(sm.item, status, false)
	if err := t.adapter.EditText(ctx, sm.ref, view.Text, view.Opt); err != nil {
		log.Debug("edit after acknowledgement failed", logx.Err(err))
	}
}

func operatorName(cb *kit.Callback) string {
	if cb.FromUsername != "" {
		return "@" + cb.FromUsername
	}
	return fmt.Sprintf("user %d", cb.FromID)
}
