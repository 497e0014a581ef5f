package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline accumulates buttons into a single-row inline keyboard.
type Inline struct {
	rm  *tele.ReplyMarkup
	row tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Add appends btn to the row.
func (i *Inline) Add(btn tele.Btn) *Inline {
	i.row = append(i.row, btn)
	return i
}

// Len is the number of buttons.
func (i *Inline) Len() int { return len(i.row) }

// Markup returns the keyboard, or nil when it has no buttons.
func (i *Inline) Markup() *tele.ReplyMarkup {
	if len(i.row) == 0 {
		return nil
	}
	i.rm.Inline(i.row)
	return i.rm
}

// DataBtn is a callback button. Telegram delivers unique and data back to
// the bot on press; the pair must fit in MaxCallbackDataLen.
func DataBtn(text, unique, data string) tele.Btn {
	return tele.Btn{Text: text, Unique: unique, Data: data}
}

// URLBtn opens url.
func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// FitsCallback reports whether a DataBtn with unique and data can be sent.
// telebot encodes it as "\f<unique>|<data>".
func FitsCallback(unique, data string) bool {
	return len(unique)+len(data)+2 <= MaxCallbackDataLen
}
