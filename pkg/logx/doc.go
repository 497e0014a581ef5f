// Package logx configures zbxbridge's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - JSON output on demand, and size-rotated JSON log files
//   - An optional Telegram sink (min-level + rate limiting)
package logx
