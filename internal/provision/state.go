package provision

// State is the connectivity state machine's own state. It is never
// serialized; only the credentials that got the device to Connected are
// ever persisted.
type State int

const (
	StateNoCredentials State = iota
	StateBootstrapping
	StateAwaitingSettings
	StateVerifyingSettings
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNoCredentials:
		return "no_credentials"
	case StateBootstrapping:
		return "bootstrapping"
	case StateAwaitingSettings:
		return "awaiting_settings"
	case StateVerifyingSettings:
		return "verifying_settings"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}
