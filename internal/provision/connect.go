package provision

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/danmuck/improvctl/internal/improv"
	"github.com/danmuck/improvctl/internal/observability"
)

// addrProgressLogEvery paces the "still waiting" progress log during the
// address wait. The counter only drives log cadence; it is not a timeout.
const addrProgressLogEvery = 8

// connectLoop keeps the station connected for the device's lifetime.
// alreadyConnected is true when bootstrap just verified credentials with
// a live connection, in which case the first iteration skips the dial
// and goes straight to post-connect handling.
func (s *Supervisor) connectLoop(ctx context.Context, alreadyConnected bool) error {
	wasConnected := false
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if alreadyConnected {
			alreadyConnected = false
		} else {
			if !s.radio.Started() {
				if err := s.radio.ConfigureSTA(s.ssid, s.password); err != nil {
					s.log.Error().Err(err).Msg("station configuration failed")
					s.backoff(ctx, &wasConnected)
					continue
				}
				if err := s.radio.Start(); err != nil {
					s.log.Error().Err(err).Msg("station start failed")
					s.backoff(ctx, &wasConnected)
					continue
				}
			}
			s.setState(StateConnecting)
			observability.RecordConnectAttempt()
			if err := s.radio.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				observability.RecordConnectFailure()
				s.log.Error().Err(err).Str("ssid", s.ssid).Msg("wifi connect failed")
				s.backoff(ctx, &wasConnected)
				continue
			}
			s.log.Info().Str("ssid", s.ssid).Msg("connected to wifi")
		}

		if !s.waitForLink(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.backoff(ctx, &wasConnected)
			continue
		}

		addr, ok := s.waitForAddr(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Dur("timeout", s.timings.AddrWaitTimeout).Msg("no address assigned before deadline")
			s.backoff(ctx, &wasConnected)
			continue
		}
		s.log.Info().Str("addr", addr.String()).Msg("address assigned")
		s.notifier.publish(Event{Kind: EventAddrAcquired, Addr: addr, SSID: s.ssid})

		if s.provisioning {
			if err := s.completeProvisioning(addr); err != nil {
				// The operator must know credentials were NOT saved; carrying
				// on as provisioned would brick the device on next boot.
				s.log.Error().Err(err).Msg("credential persistence failed, provisioning aborted")
				return err
			}
		}
		s.notifier.publish(Event{Kind: EventStationConnected, SSID: s.ssid})
		s.setState(StateConnected)
		wasConnected = true

		s.monitorLink(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Str("ssid", s.ssid).Msg("wifi link lost")
		s.backoff(ctx, &wasConnected)
	}
}

// completeProvisioning persists the verified credentials and finishes
// the serial exchange with the peer still waiting on the other end.
func (s *Supervisor) completeProvisioning(addr netip.Addr) error {
	if err := s.saveCredentials(); err != nil {
		return err
	}
	s.log.Info().Msg("credentials stored")
	s.send(improv.NewCurrentState(improv.StateProvisioned), true)

	if s.web != nil {
		if err := s.web.Start(WebModeSTA, addr); err != nil {
			s.log.Error().Err(err).Msg("station web endpoint failed to start")
		}
	}

	url := fmt.Sprintf("%s://%s", s.urlScheme, addr)
	redirect, err := improv.NewRedirectResult(url)
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("redirect url does not fit a frame")
	} else {
		s.send(redirect, true)
	}
	s.provisioning = false
	return nil
}

func (s *Supervisor) waitForLink(ctx context.Context) bool {
	for !s.radio.LinkUp() {
		s.log.Debug().Msg("waiting for link")
		if !sleep(ctx, s.timings.LinkPollInterval) {
			return false
		}
	}
	return true
}

// waitForAddr polls for an assigned IPv4 address. With AddrWaitTimeout
// zero it waits forever; the attempt counter only paces progress logs.
func (s *Supervisor) waitForAddr(ctx context.Context) (netip.Addr, bool) {
	var deadline time.Time
	if s.timings.AddrWaitTimeout > 0 {
		deadline = time.Now().Add(s.timings.AddrWaitTimeout)
	}
	attempts := 0
	for {
		if addr, ok := s.radio.AddrV4(); ok {
			return addr, true
		}
		attempts++
		if attempts%addrProgressLogEvery == 0 {
			s.log.Info().Int("attempts", attempts).Msg("still waiting for an address")
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return netip.Addr{}, false
		}
		if !sleep(ctx, s.timings.AddrPollInterval) {
			return netip.Addr{}, false
		}
	}
}

// monitorLink blocks while the link stays up.
func (s *Supervisor) monitorLink(ctx context.Context) {
	for s.radio.LinkUp() {
		if !sleep(ctx, s.timings.LinkPollInterval) {
			return
		}
	}
}

// backoff reports a Connected->Disconnected transition exactly once,
// then waits the fixed reconnect delay.
func (s *Supervisor) backoff(ctx context.Context, wasConnected *bool) {
	if *wasConnected {
		*wasConnected = false
		s.notifier.publish(Event{Kind: EventAddrLost, SSID: s.ssid})
		s.notifier.publish(Event{Kind: EventStationDisconnected, SSID: s.ssid})
	}
	s.setState(StateDisconnected)
	sleep(ctx, s.timings.ReconnectDelay)
}
