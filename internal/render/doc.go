// Package render holds the notifier.Renderer implementations: a structured
// log line, a Telegram chat message with acknowledgement buttons, a signed
// JSON webhook, and a fan-out wrapper combining several of them.
package render
