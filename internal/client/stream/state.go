package stream

// State is the connection state of a Client.
type State string

// Client states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	// StateErrored is reported when the transport fails, just before the
	// client moves on to reconnecting or failed.
	StateErrored State = "errored"
)

// Status is a point-in-time view of a Client.
type Status struct {
	State    State `json:"state"`
	Attempts int   `json:"attempts"`
	Outbound int   `json:"outbound"`
}

// loop events
type (
	connectCmd    struct{}
	disconnectCmd struct{}
	sendCmd       struct{ payload []byte }

	opened struct {
		gen  uint64
		conn Conn
	}
	dialFailed struct {
		gen uint64
		err error
	}
	received struct {
		gen  uint64
		data []byte
	}
	closed struct {
		gen uint64
		err error
	}

	heartbeatDue struct{ gen uint64 }
	reconnectDue struct{ gen uint64 }
)

type command struct {
	cmd  any
	done chan struct{}
}
