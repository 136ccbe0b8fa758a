// Package improv implements the serial Wi-Fi provisioning wire protocol:
// a small framed binary format exchanged with a host over a serial link
// before the device has any network connectivity.
//
// Frame layout: "IMPROV" magic, version byte, payload type byte, payload
// length byte, payload, additive mod-256 checksum over everything before
// the checksum byte, and a fixed 0x0A terminator.
package improv

// Terminator ends every frame on the wire. It doubles as the
// resynchronization marker after a corrupt frame.
const Terminator byte = 0x0A

// Version is the only protocol version this codec speaks.
const Version byte = 0x01

// MaxStringLen bounds every length-prefixed string on the wire.
const MaxStringLen = 255

// maxPayloadLen bounds the whole payload; its length is a single byte.
const maxPayloadLen = 255

var magic = []byte{'I', 'M', 'P', 'R', 'O', 'V', Version}

// Payload type bytes.
const (
	typeCurrentState byte = 0x01
	typeErrorState   byte = 0x02
	typeCommand      byte = 0x03
	typeResult       byte = 0x04
)

// State is the device state reported to the provisioning peer.
type State byte

const (
	StateReady        State = 0x02
	StateProvisioning State = 0x03
	StateProvisioned  State = 0x04
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateProvisioning:
		return "provisioning"
	case StateProvisioned:
		return "provisioned"
	}
	return "unknown"
}

// ErrorCode is the error state reported to the provisioning peer.
type ErrorCode byte

const (
	ErrorNone            ErrorCode = 0x00
	ErrorInvalidPacket   ErrorCode = 0x01
	ErrorUnknownCommand  ErrorCode = 0x02
	ErrorUnableToConnect ErrorCode = 0x03
	ErrorUnknown         ErrorCode = 0xFF
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorNone:
		return "no_error"
	case ErrorInvalidPacket:
		return "invalid_rpc_packet"
	case ErrorUnknownCommand:
		return "unknown_rpc_command"
	case ErrorUnableToConnect:
		return "unable_to_connect"
	case ErrorUnknown:
		return "unknown_error"
	}
	return "invalid"
}

// CommandOp identifies an RPC command, and in results the command being
// responded to.
type CommandOp byte

const (
	OpSendWifiSettings           CommandOp = 0x01
	OpRequestCurrentState        CommandOp = 0x02
	OpRequestDeviceInformation   CommandOp = 0x03
	OpRequestScannedWifiNetworks CommandOp = 0x04
)

func (op CommandOp) String() string {
	switch op {
	case OpSendWifiSettings:
		return "send_wifi_settings"
	case OpRequestCurrentState:
		return "request_current_state"
	case OpRequestDeviceInformation:
		return "request_device_information"
	case OpRequestScannedWifiNetworks:
		return "request_scanned_wifi_networks"
	}
	return "invalid"
}
