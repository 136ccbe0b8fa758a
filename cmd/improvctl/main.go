// improvctl talks to an improvd device from the host side of the serial
// link: query state and device information, list networks, and send
// credentials.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/danmuck/improvctl/internal/improv"
	"github.com/danmuck/improvctl/internal/logging"
	"github.com/danmuck/improvctl/internal/serialio"
)

const (
	replyTimeout = 10 * time.Second
	joinTimeout  = 90 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "improvctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("improvctl", pflag.ContinueOnError)
	serialDev := flags.StringP("serial", "s", "", "serial device the target is attached to")
	baud := flags.Int("baud", 115200, "serial baud rate")
	ssid := flags.String("ssid", "", "network name, for join")
	password := flags.String("password", "", "network password, for join")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flags.Args()
	if len(args) != 1 {
		return errors.New("usage: improvctl --serial <device> state|info|scan|join")
	}
	if *serialDev == "" {
		return errors.New("--serial is required")
	}

	logging.ConfigureRuntime()

	port, err := serialio.Open(*serialDev, *baud)
	if err != nil {
		return err
	}
	defer port.Close()
	c := newClient(port)

	switch args[0] {
	case "state":
		return c.state()
	case "info":
		return c.info()
	case "scan":
		return c.scan()
	case "join":
		if *ssid == "" {
			return errors.New("join requires --ssid")
		}
		return c.join(*ssid, *password)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// client decodes the device's frame stream in the background so command
// handlers can wait for the reply they care about and skip the rest,
// such as the unsolicited ready hello.
type client struct {
	rw     io.ReadWriter
	frames chan improv.Frame
	errs   chan error
}

func newClient(rw io.ReadWriter) *client {
	c := &client{
		rw:     rw,
		frames: make(chan improv.Frame, 16),
		errs:   make(chan error, 1),
	}
	go c.readLoop()
	return c
}

func (c *client) readLoop() {
	buf := make([]byte, 0, 256)
	tmp := make([]byte, 64)
	for {
		n, err := c.rw.Read(tmp)
		if err != nil {
			c.errs <- err
			return
		}
		buf = append(buf, tmp[:n]...)
		for len(buf) > 0 {
			frame, consumed, err := improv.Decode(buf)
			if errors.Is(err, improv.ErrIncomplete) {
				break
			}
			if err != nil {
				buf, _ = improv.Resync(buf)
				if len(buf) == 0 {
					break
				}
				continue
			}
			buf = buf[consumed:]
			c.frames <- frame
		}
	}
}

func (c *client) send(f improv.Frame) error {
	if _, err := c.rw.Write(improv.Encode(f)); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// wait returns the first frame matching pred, discarding others.
func (c *client) wait(timeout time.Duration, pred func(improv.Frame) bool) (improv.Frame, error) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-c.frames:
			if pred(f) {
				return f, nil
			}
		case err := <-c.errs:
			return improv.Frame{}, fmt.Errorf("serial read: %w", err)
		case <-deadline:
			return improv.Frame{}, errors.New("timed out waiting for the device")
		}
	}
}

func (c *client) state() error {
	if err := c.send(improv.NewCommand(improv.OpRequestCurrentState)); err != nil {
		return err
	}
	f, err := c.wait(replyTimeout, func(f improv.Frame) bool {
		_, ok := f.Payload.(improv.CurrentState)
		return ok
	})
	if err != nil {
		return err
	}
	fmt.Println(f.Payload.(improv.CurrentState).State)
	return nil
}

func (c *client) info() error {
	if err := c.send(improv.NewCommand(improv.OpRequestDeviceInformation)); err != nil {
		return err
	}
	f, err := c.wait(replyTimeout, respondsTo(improv.OpRequestDeviceInformation))
	if err != nil {
		return err
	}
	res := f.Payload.(improv.Result)
	labels := []string{"firmware", "version", "chip", "model"}
	for i, s := range res.Strings {
		label := "extra"
		if i < len(labels) {
			label = labels[i]
		}
		fmt.Printf("%-8s %s\n", label, s)
	}
	return nil
}

func (c *client) scan() error {
	if err := c.send(improv.NewCommand(improv.OpRequestScannedWifiNetworks)); err != nil {
		return err
	}
	for {
		f, err := c.wait(replyTimeout, respondsTo(improv.OpRequestScannedWifiNetworks))
		if err != nil {
			return err
		}
		res := f.Payload.(improv.Result)
		if len(res.Strings) == 0 {
			return nil
		}
		if len(res.Strings) != 3 {
			return fmt.Errorf("malformed scan entry: %v", res.Strings)
		}
		lock := " "
		if res.Strings[2] == "YES" {
			lock = "*"
		}
		fmt.Printf("%s %4s dBm  %s\n", lock, res.Strings[1], res.Strings[0])
	}
}

func (c *client) join(ssid, password string) error {
	settings, err := improv.NewWifiSettings(ssid, password)
	if err != nil {
		return err
	}
	if err := c.send(settings); err != nil {
		return err
	}
	// The device answers with Provisioning, then either an error state or
	// Provisioned plus a redirect URL.
	f, err := c.wait(joinTimeout, func(f improv.Frame) bool {
		switch p := f.Payload.(type) {
		case improv.ErrorState:
			return true
		case improv.CurrentState:
			return p.State == improv.StateProvisioned
		}
		return false
	})
	if err != nil {
		return err
	}
	if es, ok := f.Payload.(improv.ErrorState); ok {
		return fmt.Errorf("device reported: %s", es.Code)
	}
	fmt.Println("provisioned")

	if redirect, err := c.wait(replyTimeout, respondsTo(improv.OpSendWifiSettings)); err == nil {
		res := redirect.Payload.(improv.Result)
		if len(res.Strings) > 0 {
			fmt.Printf("configure at %s\n", res.Strings[0])
		}
	}
	return nil
}

func respondsTo(op improv.CommandOp) func(improv.Frame) bool {
	return func(f improv.Frame) bool {
		res, ok := f.Payload.(improv.Result)
		return ok && res.RespondsTo == op
	}
}
