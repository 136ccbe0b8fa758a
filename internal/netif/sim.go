// Package netif provides Radio implementations: a cyw43439-backed
// station driver for rp2350 hardware and an in-memory simulator for
// hosts and tests.
package netif

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/danmuck/improvctl/internal/provision"
)

// ErrNoSuchNetwork is returned by the simulator when the configured SSID
// is not among its known networks or the password does not match.
var ErrNoSuchNetwork = errors.New("netif: no such network")

type simMode int

const (
	simModeIdle simMode = iota
	simModeAP
	simModeSTA
)

// SimNetwork is one network the simulator will report in scans and
// accept connections to.
type SimNetwork struct {
	SSID     string
	Password string
	RSSI     int
}

// SimRadio is an in-memory Radio. A connection to a known network with
// the right password brings the link up and assigns Addr after
// AddrDelay, so address-wait behavior is exercisable.
type SimRadio struct {
	mu sync.Mutex

	Networks  []SimNetwork
	Addr      netip.Addr
	AddrDelay time.Duration

	mode     simMode
	ssid     string
	password string
	started  bool
	linkUp   bool
	addrAt   time.Time
}

// NewSimRadio simulates a radio that can reach the given networks.
func NewSimRadio(networks ...SimNetwork) *SimRadio {
	return &SimRadio{
		Networks: networks,
		Addr:     netip.AddrFrom4([4]byte{192, 168, 1, 40}),
	}
}

func (r *SimRadio) ConfigureAP(ssid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = simModeAP
	r.ssid = ssid
	r.password = ""
	return nil
}

func (r *SimRadio) ConfigureSTA(ssid, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = simModeSTA
	r.ssid = ssid
	r.password = password
	return nil
}

func (r *SimRadio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

func (r *SimRadio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	r.linkUp = false
	return nil
}

func (r *SimRadio) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *SimRadio) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != simModeSTA || !r.started {
		return errors.New("netif: station not started")
	}
	for _, n := range r.Networks {
		if n.SSID == r.ssid && n.Password == r.password {
			r.linkUp = true
			r.addrAt = time.Now().Add(r.AddrDelay)
			return nil
		}
	}
	return ErrNoSuchNetwork
}

func (r *SimRadio) LinkUp() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linkUp
}

func (r *SimRadio) AddrV4() (netip.Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.linkUp || time.Now().Before(r.addrAt) {
		return netip.Addr{}, false
	}
	return r.Addr, true
}

func (r *SimRadio) Scan(ctx context.Context) ([]provision.ScanEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]provision.ScanEntry, 0, len(r.Networks))
	for _, n := range r.Networks {
		entries = append(entries, provision.ScanEntry{
			SSID:         n.SSID,
			RSSI:         n.RSSI,
			AuthRequired: n.Password != "",
		})
	}
	return entries, nil
}

// DropLink simulates losing the association.
func (r *SimRadio) DropLink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linkUp = false
}
