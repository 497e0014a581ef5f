package app

// StopReason tells why Run returned.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopOnce       StopReason = "run_once"
	StopFatalError StopReason = "fatal_error"
)
