// Package tgui builds Telegram messages in HTML parse mode: escaped text,
// inline keyboards and the send options that go with them.
package tgui
