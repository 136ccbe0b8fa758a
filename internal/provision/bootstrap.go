package provision

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/improvctl/internal/improv"
	"github.com/danmuck/improvctl/internal/observability"
)

// deviceInfoRecoveryByte marks a mangled RequestCurrentState from a peer
// that is known to drop leading bytes right after flashing. When a
// corrupt span ends with this byte before the terminator, the device
// answers with its information as if asked. This is an interoperability
// heuristic, not part of the protocol; do not generalize it.
const deviceInfoRecoveryByte = 0xE6

// bootstrap hosts the access point and serves the provisioning RPC
// exchange. It returns true when a SendWifiSettings attempt already
// verified the credentials with a live connection, so the connect loop
// must not dial again before its post-connect handling.
func (s *Supervisor) bootstrap(ctx context.Context) (connected bool, err error) {
	apName := s.info.FirmwareName
	if err := s.radio.ConfigureAP(apName); err != nil {
		return false, fmt.Errorf("provision: configure access point: %w", err)
	}
	if err := s.radio.Start(); err != nil {
		return false, fmt.Errorf("provision: start access point: %w", err)
	}

	if s.portal != nil {
		portalCtx, cancel := context.WithCancel(ctx)
		s.portalCancel = cancel
		go func() {
			if err := s.portal.Start(portalCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("portal services stopped")
			}
		}()
	}
	if s.web != nil {
		if err := s.web.Start(WebModeAP, s.apAddr); err != nil {
			s.log.Error().Err(err).Msg("access-point web endpoint failed to start")
		}
	}
	s.notifier.publish(Event{Kind: EventAddrAcquired, Addr: s.apAddr, Captive: true, SSID: apName})

	s.log.Info().Msg("wifi credentials not configured")
	s.log.Info().Str("ssid", apName).Msg("provisioning access point is up")
	s.log.Info().Str("url", s.urlScheme+"://"+s.apAddr.String()).Msg("connect and open the configuration page")

	s.setState(StateAwaitingSettings)

	// The peer often starts talking immediately after flashing; sending
	// too early loses bytes on its side, so settle first. The hello is
	// unsolicited because the peer's own state request can be missed.
	if !sleep(ctx, s.timings.SettleDelay) {
		return false, ctx.Err()
	}
	s.sendWithTimeout(improv.NewCurrentState(improv.StateReady), s.timings.HelloTimeout)

	buf := make([]byte, 0, 128)
	tmp := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		n, readErr := s.serial.Read(tmp)
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return false, ErrPeerGone
			}
			s.log.Error().Err(readErr).Msg("serial read failed")
			continue
		}
		if n == 0 {
			// Zero-length read is the transport's "peer detached" signal.
			return false, ErrPeerGone
		}
		buf = append(buf, tmp[:n]...)

		for len(buf) > 0 {
			frame, consumed, decodeErr := improv.Decode(buf)
			if errors.Is(decodeErr, improv.ErrIncomplete) {
				break
			}
			if decodeErr != nil {
				observability.RecordDecodeError()
				s.log.Warn().Err(decodeErr).Hex("buffer", buf).Msg("frame decode failed, resynchronizing")
				rest, discarded := improv.Resync(buf)
				s.maybeRecoverDeviceInfoRequest(discarded)
				buf = rest
				continue
			}
			observability.RecordFrameReceived()
			buf = buf[consumed:]

			done, err := s.dispatch(ctx, frame)
			if err != nil {
				return false, err
			}
			if done {
				return true, nil
			}
		}
	}
}

// dispatch handles one decoded frame. done is true once credentials have
// been verified and bootstrap should hand over to the connect loop.
func (s *Supervisor) dispatch(ctx context.Context, frame improv.Frame) (done bool, err error) {
	cmd, ok := frame.Payload.(improv.Command)
	if !ok {
		// State, error and result payloads are device-to-peer only;
		// receiving one back is harmless noise.
		return false, nil
	}
	switch cmd.Op {
	case improv.OpRequestCurrentState:
		s.send(improv.NewCurrentState(improv.StateReady), false)
	case improv.OpRequestDeviceInformation:
		s.sendDeviceInfo(false)
	case improv.OpRequestScannedWifiNetworks:
		s.handleScan(ctx)
	case improv.OpSendWifiSettings:
		return s.verifySettings(ctx, cmd.SSID, cmd.Password)
	}
	return false, nil
}

func (s *Supervisor) sendDeviceInfo(flush bool) {
	frame, err := improv.NewDeviceInfoResult(
		s.info.FirmwareName, s.info.FirmwareVersion, s.info.Chip, s.info.Model)
	if err != nil {
		s.log.Error().Err(err).Msg("device information does not fit a frame")
		return
	}
	s.send(frame, flush)
}

// handleScan reports reachable networks, deduplicated by SSID with first
// occurrence and original order kept, then exactly one empty terminal
// result regardless of how many networks were found.
func (s *Supervisor) handleScan(ctx context.Context) {
	s.log.Info().Msg("scanning for wifi networks")
	entries, err := s.radio.Scan(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("wifi scan failed")
	}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.SSID]; dup {
			continue
		}
		seen[entry.SSID] = struct{}{}
		frame, err := improv.NewScanResult(entry.SSID, entry.RSSI, entry.AuthRequired)
		if err != nil {
			s.log.Warn().Err(err).Str("ssid", entry.SSID).Msg("scan entry does not fit a frame, skipped")
			continue
		}
		s.send(frame, true)
	}
	s.send(improv.NewScanEndResult(), true)
}

// verifySettings attempts one station connection with the supplied
// credentials. Failure reports UnableToConnect and keeps listening; the
// access point is not restarted after it has been stopped.
func (s *Supervisor) verifySettings(ctx context.Context, ssid, password string) (done bool, err error) {
	s.setState(StateVerifyingSettings)
	s.send(improv.NewCurrentState(improv.StateProvisioning), true)

	if s.portalCancel != nil || s.radio.Started() {
		s.log.Info().Msg("stopping access point for credential verification")
		if s.web != nil {
			s.web.Stop()
		}
		s.stopPortal()
		if err := s.radio.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("access point stop failed")
		}
	}

	s.log.Info().Str("ssid", ssid).Msg("verifying supplied wifi credentials")
	observability.RecordProvisionAttempt()
	if err := s.radio.ConfigureSTA(ssid, password); err != nil {
		s.log.Error().Err(err).Msg("station configuration failed")
		s.send(improv.NewErrorState(improv.ErrorUnableToConnect), true)
		return false, nil
	}
	if err := s.radio.Start(); err != nil {
		s.log.Error().Err(err).Msg("station start failed")
		s.send(improv.NewErrorState(improv.ErrorUnableToConnect), true)
		return false, nil
	}
	observability.RecordConnectAttempt()
	if err := s.radio.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		observability.RecordConnectFailure()
		s.log.Info().Err(err).Msg("credentials rejected by network")
		s.send(improv.NewErrorState(improv.ErrorUnableToConnect), true)
		if stopErr := s.radio.Stop(); stopErr != nil {
			s.log.Warn().Err(stopErr).Msg("station stop failed")
		}
		return false, nil
	}

	s.ssid, s.password = ssid, password
	s.provisioning = true
	s.log.Info().Str("ssid", ssid).Msg("credentials verified")
	return true, nil
}

func (s *Supervisor) stopPortal() {
	if s.portalCancel != nil {
		s.portalCancel()
		s.portalCancel = nil
	}
}

// maybeRecoverDeviceInfoRequest applies the known-peer compatibility
// heuristic: a discarded span whose byte before the terminator is the
// recovery sentinel is treated as a device information request.
func (s *Supervisor) maybeRecoverDeviceInfoRequest(discarded []byte) {
	n := len(discarded)
	if n < 2 || discarded[n-1] != improv.Terminator {
		return
	}
	if discarded[n-2] != deviceInfoRecoveryByte {
		return
	}
	s.log.Debug().Msg("recovered mangled device information request")
	s.sendDeviceInfo(false)
}
