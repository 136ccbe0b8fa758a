// Package serialio provides the serial transports the provisioning
// exchange runs over: a real serial port, the process stdio, and an
// in-memory pipe for tests and loopback runs.
package serialio

import (
	"fmt"
	"io"
	"os"

	"github.com/tarm/serial"
)

// Port is a serial device transport.
type Port struct {
	port *serial.Port
}

// Open opens the serial device at the given baud rate.
func Open(device string, baud int) (*Port, error) {
	p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("serialio: open %s: %w", device, err)
	}
	return &Port{port: p}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *Port) Flush() error                { return p.port.Flush() }
func (p *Port) Close() error                { return p.port.Close() }

// Stdio speaks the protocol over the process's own stdin/stdout, the
// shape of a device whose serial console is the flashing cable.
type Stdio struct{}

func (Stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (Stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (Stdio) Flush() error                { return nil }

// Pipe is one end of an in-memory duplex byte stream.
type Pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// NewPipe returns two connected transports; writes on one side are read
// on the other. Closing an end surfaces as io.EOF to its peer.
func NewPipe() (a, b *Pipe) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &Pipe{r: ar, w: aw}, &Pipe{r: br, w: bw}
}

func (p *Pipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *Pipe) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *Pipe) Flush() error                { return nil }

func (p *Pipe) Close() error {
	p.r.Close()
	return p.w.Close()
}
