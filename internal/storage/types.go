package storage

import (
	"time"

	"github.com/cockroachdb/errors"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines audit file
//   - "sqlite" / "sqlite3": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry kinds.
const (
	KindDelivery = "delivery"
	KindDrop     = "drop"
	KindAck      = "ack"
)

// AuditEntry records one delivery outcome or acknowledgement.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Kind     string    `json:"kind"`
	EventID  string    `json:"eventid"`
	Severity string    `json:"severity,omitempty"`
	Host     string    `json:"host,omitempty"`
	// Renderer for deliveries, "ack"/"unack" for acknowledgements.
	Action  string `json:"action,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	TookMS  int64  `json:"took_ms"`
	Message string `json:"message,omitempty"`
}
