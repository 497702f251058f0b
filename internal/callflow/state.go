// ABOUTME: States of the incoming-call automation
// ABOUTME: Received through Done, plus the terminal abort and gate-closed states

package callflow

// State is a step of one call's automation.
type State int

// Automation states.
const (
	Received State = iota
	Rejected
	PendingMessage
	MessageSent
	PendingUnread
	Done
	AbortedNoSession
	AbortedUnresolved
	GateClosed
)

var stateNames = [...]string{
	Received:          "received",
	Rejected:          "rejected",
	PendingMessage:    "pending_message",
	MessageSent:       "message_sent",
	PendingUnread:     "pending_unread",
	Done:              "done",
	AbortedNoSession:  "aborted_no_session",
	AbortedUnresolved: "aborted_unresolved",
	GateClosed:        "gate_closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further step follows s.
func (s State) Terminal() bool {
	switch s {
	case Done, AbortedNoSession, AbortedUnresolved, GateClosed:
		return true
	}
	return false
}
