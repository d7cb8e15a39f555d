// Package metrics records connectivity events. Label maps are free-form; the
// Prometheus recorder keeps the "connector" and "chain" labels.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names
const (
	EventTransition       = "transition"
	EventConnectSuccess   = "connect_success"
	EventConnectFailure   = "connect_failure"
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnectFailed  = "reconnect_exhausted"
	EventSwitchChain      = "switch_chain"
	EventSwitchFailure    = "switch_chain_failure"
	EventStaleResult      = "stale_result"

	OpConnect   = "connect"
	OpReconnect = "reconnect"
	OpProbe     = "probe"
)

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
