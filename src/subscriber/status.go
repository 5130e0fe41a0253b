package subscriber

// Status is the connection indicator shown to the consumer at all times.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusError
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
