package storage

import "time"

// AttemptEvent is one provider attempt inside a single orchestration call,
// recorded for operational forensics. ErrorKind is "auth" for credential
// problems and "unavailable" for everything else.
type AttemptEvent struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	Succeeded bool      `json:"succeeded"`
	ErrorKind string    `json:"error_kind,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
}

type Recorder interface {
	RecordAttempt(event AttemptEvent) error
}
