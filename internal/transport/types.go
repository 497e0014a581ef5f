package transport

import "context"

type UpdateKind string

const (
	UpdateCallback UpdateKind = "callback"
)

// Update is an inbound event from a chat platform. Only inline button
// presses are forwarded; plain messages are ignored by the bridge.
type Update struct {
	Kind     UpdateKind
	Callback *Callback
}

type Callback struct {
	ID           string
	FromID       int64
	FromUsername string
	ChatID       int64
	ThreadID     int
	MessageID    int
	// Unique is the button identifier, Data its payload.
	Unique string
	Data   string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Adapter is a chat transport: it sends and edits messages and forwards
// button presses to the channel given to Start.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
