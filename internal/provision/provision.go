// Package provision drives the device from "credentials unknown" to
// "connected and staying connected". With no stored credentials it
// bootstraps over the serial provisioning protocol while hosting an
// access point; with credentials it goes straight to the connect loop
// and reconnects forever on a fixed backoff.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/improvctl/internal/improv"
	"github.com/danmuck/improvctl/internal/observability"
)

// wifiConfigKey is the fixed credential-store key, kept byte-compatible
// with the flash layout of already-deployed devices.
const wifiConfigKey = "__wifi__"

// ErrPeerGone means the serial peer disappeared during bootstrap. With
// no credentials and no peer there is nothing left to do.
var ErrPeerGone = errors.New("provision: serial peer gone during bootstrap")

// DeviceInfo is reported to the peer on RequestDeviceInformation.
type DeviceInfo struct {
	FirmwareName    string
	FirmwareVersion string
	Chip            string
	Model           string
}

// Config wires the supervisor's collaborators. Radio, Serial and Store
// are required; Portal and Web may be nil when the deployment has no
// helper services or web endpoint.
type Config struct {
	Radio  Radio
	Serial Transport
	Store  CredentialStore
	Portal Portal
	Web    WebConfig

	Info DeviceInfo
	// APAddr is the device's own address while in access-point mode.
	APAddr netip.Addr
	// URLScheme is "http" or "https", used for operator-facing URLs.
	URLScheme string
	Timings   Timings
	Logger    zerolog.Logger
}

// Supervisor owns the connectivity state machine. All state is mutated
// by the single Run goroutine; collaborators are only called from there.
type Supervisor struct {
	radio    Radio
	serial   Transport
	store    CredentialStore
	portal   Portal
	web      WebConfig
	notifier *Notifier

	info      DeviceInfo
	apAddr    netip.Addr
	urlScheme string
	timings   Timings
	log       zerolog.Logger

	state        State
	ssid         string
	password     string
	provisioning bool
	portalCancel context.CancelFunc
}

// New builds a supervisor in StateNoCredentials.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Radio == nil {
		return nil, errors.New("provision: radio is required")
	}
	if cfg.Serial == nil {
		return nil, errors.New("provision: serial transport is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("provision: credential store is required")
	}
	if cfg.URLScheme == "" {
		cfg.URLScheme = "http"
	}
	if cfg.Timings == (Timings{}) {
		cfg.Timings = DefaultTimings()
	}
	return &Supervisor{
		radio:     cfg.Radio,
		serial:    cfg.Serial,
		store:     cfg.Store,
		portal:    cfg.Portal,
		web:       cfg.Web,
		notifier:  &Notifier{},
		info:      cfg.Info,
		apAddr:    cfg.APAddr,
		urlScheme: cfg.URLScheme,
		timings:   cfg.Timings,
		log:       cfg.Logger,
		state:     StateNoCredentials,
	}, nil
}

// Subscribe registers an observer for supervisor events.
func (s *Supervisor) Subscribe(fn func(Event)) *Subscription {
	return s.notifier.Subscribe(fn)
}

// Unsubscribe cancels a subscription returned by Subscribe.
func (s *Supervisor) Unsubscribe(sub *Subscription) {
	s.notifier.Cancel(sub)
}

// State returns the current machine state. Only meaningful from the Run
// goroutine or after Run has returned; there is no cross-goroutine
// synchronization.
func (s *Supervisor) State() State {
	return s.state
}

// Run executes the state machine until ctx is cancelled, the serial peer
// disappears during bootstrap, or a credential persistence failure aborts
// a provisioning attempt. It never returns while connectivity is merely
// failing; those paths retry forever.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.loadCredentials() {
		s.log.Info().Str("ssid", s.ssid).Msg("stored credentials found, skipping bootstrap")
		return s.connectLoop(ctx, false)
	}

	s.setState(StateBootstrapping)
	connected, err := s.bootstrap(ctx)
	if err != nil {
		return err
	}
	return s.connectLoop(ctx, connected)
}

func (s *Supervisor) setState(next State) {
	if next == s.state {
		return
	}
	s.log.Debug().Stringer("from", s.state).Stringer("to", next).Msg("state transition")
	s.state = next
}

type wifiConfig struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Supervisor) loadCredentials() bool {
	raw, ok, err := s.store.Fetch(wifiConfigKey)
	if err != nil {
		s.log.Error().Err(err).Msg("credential fetch failed, treating as unconfigured")
		return false
	}
	if !ok {
		return false
	}
	var cfg wifiConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		s.log.Error().Err(err).Msg("stored credentials unreadable, treating as unconfigured")
		return false
	}
	if cfg.SSID == "" {
		return false
	}
	s.ssid, s.password = cfg.SSID, cfg.Password
	return true
}

func (s *Supervisor) saveCredentials() error {
	raw, err := json.Marshal(wifiConfig{SSID: s.ssid, Password: s.password})
	if err != nil {
		return fmt.Errorf("provision: encode credentials: %w", err)
	}
	if err := s.store.Store(wifiConfigKey, string(raw)); err != nil {
		return fmt.Errorf("provision: persist credentials: %w", err)
	}
	return nil
}

// send encodes and writes one frame to the peer. Write failures are
// logged, not returned; the peer may legitimately be absent.
func (s *Supervisor) send(f improv.Frame, flush bool) {
	data := improv.Encode(f)
	if _, err := s.serial.Write(data); err != nil {
		s.log.Warn().Err(err).Msg("serial write failed")
		return
	}
	observability.RecordFrameSent()
	if !flush {
		return
	}
	if err := s.serial.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("serial flush failed")
	}
}

// sendWithTimeout writes a frame but gives up waiting after d. The write
// goroutine is left to finish on its own; a transport stuck forever was
// already going nowhere.
func (s *Supervisor) sendWithTimeout(f improv.Frame, d time.Duration) {
	done := make(chan struct{})
	go func() {
		s.send(f, false)
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Warn().Dur("timeout", d).Msg("frame send timed out, continuing")
	}
}

// sleep waits for d or until ctx is cancelled, reporting whether the
// full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
