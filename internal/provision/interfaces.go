package provision

import (
	"context"
	"io"
	"net/netip"
)

// Transport is the serial link to the provisioning peer. Reads returning
// zero bytes (or io.EOF) mean the peer is gone; writes must tolerate
// nobody listening on the other end.
type Transport interface {
	io.ReadWriter
	Flush() error
}

// ScanEntry is one network found by a radio scan.
type ScanEntry struct {
	SSID         string
	RSSI         int
	AuthRequired bool
}

// Radio abstracts the Wi-Fi driver and its network stack. Connect is a
// single call to the underlying driver; this layer adds no timeout of
// its own on top of the driver's.
type Radio interface {
	ConfigureAP(ssid string) error
	ConfigureSTA(ssid, password string) error
	Start() error
	Stop() error
	Started() bool
	Connect(ctx context.Context) error
	LinkUp() bool
	AddrV4() (netip.Addr, bool)
	Scan(ctx context.Context) ([]ScanEntry, error)
}

// CredentialStore persists small values under fixed keys.
type CredentialStore interface {
	Store(key, value string) error
	Fetch(key string) (value string, ok bool, err error)
	Remove(key string) error
}

// Portal runs the access-point helper services (DHCP responder and
// captive DNS). Start blocks until ctx is cancelled; the supervisor
// cancels the context when it leaves access-point mode.
type Portal interface {
	Start(ctx context.Context) error
}

// WebMode selects which network the configuration endpoint binds to.
type WebMode int

const (
	WebModeAP WebMode = iota
	WebModeSTA
)

func (m WebMode) String() string {
	if m == WebModeAP {
		return "ap"
	}
	return "sta"
}

// WebConfig is the configuration web endpoint lifecycle. The supervisor
// only starts and stops it; it does not implement the endpoint.
type WebConfig interface {
	Start(mode WebMode, addr netip.Addr) error
	Stop()
}
