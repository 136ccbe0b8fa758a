package improv

import (
	"fmt"
	"strconv"
)

// Frame is one complete protocol message. Wire type and length bytes are
// always derived from the payload at encode time, never stored.
type Frame struct {
	Payload Payload
}

// Payload is one of CurrentState, ErrorState, Command or Result.
type Payload interface {
	typeID() byte
	dataLength() int
	write(w *writer)
}

// CurrentState reports the device provisioning state.
type CurrentState struct {
	State State
}

func (p CurrentState) typeID() byte    { return typeCurrentState }
func (p CurrentState) dataLength() int { return 1 }
func (p CurrentState) write(w *writer) { w.u8(byte(p.State)) }

// ErrorState reports a protocol-level error to the peer.
type ErrorState struct {
	Code ErrorCode
}

func (p ErrorState) typeID() byte    { return typeErrorState }
func (p ErrorState) dataLength() int { return 1 }
func (p ErrorState) write(w *writer) { w.u8(byte(p.Code)) }

// Command is an RPC request from the peer. SSID and Password are only
// meaningful for OpSendWifiSettings.
type Command struct {
	Op       CommandOp
	SSID     string
	Password string
}

func (p Command) typeID() byte { return typeCommand }

func (p Command) dataLength() int { return 2 + p.commandDataLength() }

func (p Command) commandDataLength() int {
	if p.Op == OpSendWifiSettings {
		return 2 + len(p.SSID) + len(p.Password)
	}
	return 0
}

func (p Command) write(w *writer) {
	w.u8(byte(p.Op))
	w.u8(byte(p.commandDataLength()))
	if p.Op == OpSendWifiSettings {
		w.str(p.SSID)
		w.str(p.Password)
	}
}

// Result is an RPC response: the command being responded to plus an
// ordered list of strings. An empty list is meaningful; it marks the end
// of a multi-result sequence.
type Result struct {
	RespondsTo CommandOp
	Strings    []string
}

func (p Result) typeID() byte { return typeResult }

func (p Result) dataLength() int { return 2 + p.stringsLength() }

func (p Result) stringsLength() int {
	n := 0
	for _, s := range p.Strings {
		n += 1 + len(s)
	}
	return n
}

func (p Result) write(w *writer) {
	w.u8(byte(p.RespondsTo))
	w.u8(byte(p.stringsLength()))
	for _, s := range p.Strings {
		w.str(s)
	}
}

// Builders. String lengths are validated here, at construction time;
// Encode itself never fails for an in-model frame.

// NewCurrentState builds a state report frame.
func NewCurrentState(s State) Frame {
	return Frame{Payload: CurrentState{State: s}}
}

// NewErrorState builds an error report frame.
func NewErrorState(c ErrorCode) Frame {
	return Frame{Payload: ErrorState{Code: c}}
}

// NewCommand builds a data-free RPC command frame.
func NewCommand(op CommandOp) Frame {
	return Frame{Payload: Command{Op: op}}
}

// NewWifiSettings builds a SendWifiSettings command. The two strings must
// fit the single payload length byte together with their framing.
func NewWifiSettings(ssid, password string) (Frame, error) {
	if len(ssid) > MaxStringLen {
		return Frame{}, fmt.Errorf("%w: ssid is %d bytes", ErrStringTooLong, len(ssid))
	}
	if len(password) > MaxStringLen {
		return Frame{}, fmt.Errorf("%w: password is %d bytes", ErrStringTooLong, len(password))
	}
	p := Command{Op: OpSendWifiSettings, SSID: ssid, Password: password}
	if p.dataLength() > maxPayloadLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, p.dataLength())
	}
	return Frame{Payload: p}, nil
}

// NewResult builds an RPC result frame carrying the given strings.
func NewResult(respondsTo CommandOp, strings ...string) (Frame, error) {
	for _, s := range strings {
		if len(s) > MaxStringLen {
			return Frame{}, fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
		}
	}
	p := Result{RespondsTo: respondsTo, Strings: strings}
	if p.dataLength() > maxPayloadLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, p.dataLength())
	}
	return Frame{Payload: p}, nil
}

// NewDeviceInfoResult answers RequestDeviceInformation.
func NewDeviceInfoResult(firmwareName, firmwareVersion, chip, model string) (Frame, error) {
	return NewResult(OpRequestDeviceInformation, firmwareName, firmwareVersion, chip, model)
}

// NewScanResult answers RequestScannedWifiNetworks for one network.
func NewScanResult(ssid string, rssi int, authRequired bool) (Frame, error) {
	auth := "NO"
	if authRequired {
		auth = "YES"
	}
	return NewResult(OpRequestScannedWifiNetworks, ssid, strconv.Itoa(rssi), auth)
}

// NewScanEndResult is the terminal end-of-list marker after a scan.
func NewScanEndResult() Frame {
	return Frame{Payload: Result{RespondsTo: OpRequestScannedWifiNetworks}}
}

// NewRedirectResult answers SendWifiSettings with the post-provisioning
// configuration URL.
func NewRedirectResult(url string) (Frame, error) {
	return NewResult(OpSendWifiSettings, url)
}
