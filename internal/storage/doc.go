// Package storage persists the operator audit log: every delivery outcome
// and every acknowledgement request. It is not an incident history; the
// monitoring server stays the source of truth for incidents.
//
// Backends:
//   - "file": append-only JSON Lines (<path minus ext>.audit.jsonl)
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
package storage
