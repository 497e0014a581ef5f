package tgui

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "zbxbridge/internal/transport"
)

// Message is a rendered payload: text plus send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Builder assembles an HTML message line by line. Text passed to Line,
// Title and KV is escaped; RawLine is not.
type Builder struct {
	lines []string
	kb    *Inline
}

func New() *Builder { return &Builder{} }

// Title adds a bold line, prefixed with mark when it is not empty.
func (b *Builder) Title(mark, title string) *Builder {
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	if mark = strings.TrimSpace(mark); mark != "" {
		b.lines = append(b.lines, Esc(mark).String()+" "+B(title).String())
		return b
	}
	b.lines = append(b.lines, B(title).String())
	return b
}

// Line adds one escaped line; an empty s adds a blank line.
func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// Lines adds each line of a multi-line text.
func (b *Builder) Lines(text string) *Builder {
	for _, ln := range strings.Split(text, "\n") {
		b.Line(ln)
	}
	return b
}

func (b *Builder) RawLine(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder { return b.Line("") }

// KV adds a "key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, B(key).String()+": "+Esc(strings.TrimSpace(value)).String())
	return b
}

// Keyboard attaches an inline keyboard; an empty one is dropped.
func (b *Builder) Keyboard(kb *Inline) *Builder {
	b.kb = kb
	return b
}

// Build joins the lines and prepares HTML send options with link previews
// disabled. Overlong text is cut to MaxMessageLen.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	text = TruncRunes(text, MaxMessageLen)
	opt := &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true}
	if b.kb != nil {
		if rm := b.kb.Markup(); rm != nil {
			opt.ReplyMarkupAdapter = rm
		}
	}
	return Message{Text: text, Opt: opt}
}
