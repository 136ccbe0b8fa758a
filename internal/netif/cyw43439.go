//go:build rp2350

package netif

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/seqs/eth/dhcp"
	"github.com/soypat/seqs/stacks"

	"github.com/danmuck/improvctl/internal/provision"
)

const mtu = cyw43439.MTU

// ErrUnsupported marks radio operations the cyw43439 driver cannot do.
// The chip firmware exposed by the Go driver has no access-point or scan
// support, so devices built on it must be provisioned with credentials
// over serial or ship with them stored.
var ErrUnsupported = errors.New("netif: not supported by cyw43439 driver")

// Cyw43Radio drives the Pico 2 W Wi-Fi chip through soypat/cyw43439 with
// a soypat/seqs userspace network stack on top.
type Cyw43Radio struct {
	dev    *cyw43439.Device
	logger *slog.Logger

	hostname string
	ssid     string
	password string

	inited  bool
	started bool
	joined  bool
	stack   *stacks.PortStack
	addr    netip.Addr
}

// NewCyw43Radio wraps the on-board Wi-Fi device. Pass a nil logger to
// silence the driver.
func NewCyw43Radio(hostname string, logger *slog.Logger) *Cyw43Radio {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(127),
		}))
	}
	return &Cyw43Radio{
		dev:      cyw43439.NewPicoWDevice(),
		logger:   logger,
		hostname: hostname,
	}
}

func (r *Cyw43Radio) ConfigureAP(ssid string) error {
	return ErrUnsupported
}

func (r *Cyw43Radio) ConfigureSTA(ssid, password string) error {
	r.ssid = ssid
	r.password = password
	return nil
}

func (r *Cyw43Radio) Start() error {
	if !r.inited {
		cfg := cyw43439.DefaultWifiConfig()
		cfg.Logger = r.logger
		if err := r.dev.Init(cfg); err != nil {
			return err
		}
		r.inited = true
	}
	r.started = true
	return nil
}

func (r *Cyw43Radio) Stop() error {
	r.started = false
	r.joined = false
	return nil
}

func (r *Cyw43Radio) Started() bool {
	return r.started
}

// Connect joins the configured network and runs a DHCP exchange. The
// join call has the driver's own internal timeout; none is added here.
func (r *Cyw43Radio) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.started {
		return errors.New("netif: station not started")
	}
	if err := r.dev.JoinWPA2(r.ssid, r.password); err != nil {
		return err
	}
	r.joined = true
	mac, err := r.dev.HardwareAddr6()
	if err != nil {
		return err
	}

	if r.stack == nil {
		r.stack = stacks.NewPortStack(stacks.PortStackConfig{
			MAC:             mac,
			MaxOpenPortsUDP: 2, // DHCP client plus one for callers
			MaxOpenPortsTCP: 2,
			MTU:             mtu,
			Logger:          r.logger,
		})
		r.dev.RecvEthHandle(r.stack.RecvEth)
		go nicLoop(r.dev, r.stack)
	}

	dhcpClient := stacks.NewDHCPClient(r.stack, dhcp.DefaultClientPort)
	err = dhcpClient.BeginRequest(stacks.DHCPRequestConfig{
		Xid:      uint32(time.Now().Nanosecond()),
		Hostname: r.hostname,
	})
	if err != nil {
		return err
	}
	for dhcpClient.State() != dhcp.StateBound {
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(time.Second / 2)
	}
	r.addr = dhcpClient.Offer()
	r.stack.SetAddr(r.addr) // must happen after DHCP completes
	return nil
}

func (r *Cyw43Radio) LinkUp() bool {
	return r.joined
}

func (r *Cyw43Radio) AddrV4() (netip.Addr, bool) {
	if !r.joined || !r.addr.IsValid() {
		return netip.Addr{}, false
	}
	return r.addr, true
}

func (r *Cyw43Radio) Scan(ctx context.Context) ([]provision.ScanEntry, error) {
	return nil, ErrUnsupported
}

// nicLoop shuttles ethernet frames between the chip and the stack. Same
// scheme as the cyw43439 example code: a small retransmission queue with
// a sleep when both directions stall.
func nicLoop(dev *cyw43439.Device, stack *stacks.PortStack) {
	const (
		queueSize                = 3
		maxRetriesBeforeDropping = 3
	)
	var queue [queueSize][mtu]byte
	var lenBuf [queueSize]int
	var retries [queueSize]int
	markSent := func(i int) {
		lenBuf[i] = 0
		retries[i] = 0
	}
	for {
		stallRx := true
		gotPacket, err := dev.PollOne()
		if err != nil {
			println("poll error:", err.Error())
		}
		if gotPacket {
			stallRx = false
		}

		for i := range queue {
			if retries[i] != 0 {
				continue // queued for retransmission
			}
			var err error
			lenBuf[i], err = stack.HandleEth(queue[i][:])
			if err != nil {
				lenBuf[i] = 0
				continue
			}
			if lenBuf[i] == 0 {
				break
			}
		}
		if lenBuf == [queueSize]int{} {
			if stallRx {
				time.Sleep(51 * time.Millisecond)
			}
			continue
		}

		for i := range queue {
			n := lenBuf[i]
			if n <= 0 {
				continue
			}
			if err := dev.SendEth(queue[i][:n]); err != nil {
				retries[i]++
				if retries[i] > maxRetriesBeforeDropping {
					markSent(i)
					println("dropped outgoing packet:", err.Error())
				}
			} else {
				markSent(i)
			}
		}
	}
}
