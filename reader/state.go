package reader

import "fmt"

// State is the connection lifecycle state of a Supervisor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
