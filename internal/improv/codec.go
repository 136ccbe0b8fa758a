package improv

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Decode parses one frame from the start of buf and returns it together
// with the number of bytes consumed.
//
// Decoding is prefix-based: ErrIncomplete means buf is a valid prefix of
// some frame and no bytes may be discarded; the caller keeps the buffer
// and reads more input. Any other error means the leading span is corrupt
// and the caller should resynchronize with Resync.
func Decode(buf []byte) (Frame, int, error) {
	p := parser{buf: buf}

	if err := p.expect(magic, ErrInvalidMagic); err != nil {
		return Frame{}, 0, err
	}
	typ, err := p.u8()
	if err != nil {
		return Frame{}, 0, err
	}
	// The length byte is structural only; payload parsing is driven by the
	// payload type so a lying length cannot smuggle bytes past validation.
	if _, err := p.u8(); err != nil {
		return Frame{}, 0, err
	}
	payload, err := decodePayload(&p, typ)
	if err != nil {
		return Frame{}, 0, err
	}
	sum, err := p.u8()
	if err != nil {
		return Frame{}, 0, err
	}
	if err := p.expect([]byte{Terminator}, ErrInvalidMagic); err != nil {
		return Frame{}, 0, err
	}

	// Checksum covers every byte up to but excluding the checksum byte
	// itself and the terminator.
	if got := additiveChecksum(buf[:p.pos-2]); got != sum {
		return Frame{}, 0, fmt.Errorf("%w: computed 0x%02x, frame carries 0x%02x",
			ErrInvalidChecksum, got, sum)
	}
	return Frame{Payload: payload}, p.pos, nil
}

// Encode serializes f. Type, length and checksum bytes are derived from
// the payload; for in-model frames this cannot fail.
func Encode(f Frame) []byte {
	w := writer{buf: make([]byte, 0, len(magic)+4+f.Payload.dataLength())}
	w.raw(magic)
	w.u8(f.Payload.typeID())
	w.u8(byte(f.Payload.dataLength()))
	f.Payload.write(&w)
	w.u8(additiveChecksum(w.buf))
	w.u8(Terminator)
	return w.buf
}

// Resync implements the recovery policy after a non-incomplete decode
// error: everything through the next terminator is discarded, or the
// whole buffer if no terminator is present. The discarded span is
// returned for the caller's diagnostics.
func Resync(buf []byte) (rest, discarded []byte) {
	if i := bytes.IndexByte(buf, Terminator); i >= 0 {
		return buf[i+1:], buf[:i+1]
	}
	return nil, buf
}

func additiveChecksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

func decodePayload(p *parser, typ byte) (Payload, error) {
	switch typ {
	case typeCurrentState:
		v, err := p.u8()
		if err != nil {
			return nil, err
		}
		s := State(v)
		switch s {
		case StateReady, StateProvisioning, StateProvisioned:
			return CurrentState{State: s}, nil
		}
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidState, v)
	case typeErrorState:
		v, err := p.u8()
		if err != nil {
			return nil, err
		}
		c := ErrorCode(v)
		switch c {
		case ErrorNone, ErrorInvalidPacket, ErrorUnknownCommand, ErrorUnableToConnect, ErrorUnknown:
			return ErrorState{Code: c}, nil
		}
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidError, v)
	case typeCommand:
		return decodeCommand(p)
	case typeResult:
		return decodeResult(p)
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidPayloadType, typ)
}

func decodeCommand(p *parser) (Payload, error) {
	op, err := p.u8()
	if err != nil {
		return nil, err
	}
	// Command data length byte; like the outer length it is structural.
	if _, err := p.u8(); err != nil {
		return nil, err
	}
	switch CommandOp(op) {
	case OpSendWifiSettings:
		ssid, err := p.str()
		if err != nil {
			return nil, err
		}
		password, err := p.str()
		if err != nil {
			return nil, err
		}
		return Command{Op: OpSendWifiSettings, SSID: ssid, Password: password}, nil
	case OpRequestCurrentState, OpRequestDeviceInformation, OpRequestScannedWifiNetworks:
		return Command{Op: CommandOp(op)}, nil
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidCommand, op)
}

func decodeResult(p *parser) (Payload, error) {
	respondsTo, err := p.u8()
	if err != nil {
		return nil, err
	}
	stringsLen, err := p.u8()
	if err != nil {
		return nil, err
	}
	// Strings are consumed until the declared inner length is exhausted.
	// Zero strings is valid: it is the end-of-list marker.
	var out []string
	start := p.pos
	for p.pos-start < int(stringsLen) {
		s, err := p.str()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return Result{RespondsTo: CommandOp(respondsTo), Strings: out}, nil
}

// parser reads from the front of a buffer, reporting ErrIncomplete when
// it runs out of bytes so callers can wait for more input.
type parser struct {
	buf []byte
	pos int
}

func (p *parser) u8() (byte, error) {
	if p.pos >= len(p.buf) {
		return 0, ErrIncomplete
	}
	v := p.buf[p.pos]
	p.pos++
	return v, nil
}

func (p *parser) take(n int) ([]byte, error) {
	if p.pos+n > len(p.buf) {
		return nil, ErrIncomplete
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

// expect compares the next bytes against want, returning mismatch on a
// difference and ErrIncomplete when there are not enough bytes to tell.
func (p *parser) expect(want []byte, mismatch error) error {
	if p.pos+len(want) > len(p.buf) {
		// Compare the part we do have: a definite mismatch in a short
		// buffer is still a mismatch, not an incomplete frame.
		have := p.buf[p.pos:]
		if !bytes.Equal(have, want[:len(have)]) {
			return mismatch
		}
		return ErrIncomplete
	}
	if !bytes.Equal(p.buf[p.pos:p.pos+len(want)], want) {
		return mismatch
	}
	p.pos += len(want)
	return nil
}

func (p *parser) str() (string, error) {
	n, err := p.u8()
	if err != nil {
		return "", err
	}
	b, err := p.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

type writer struct {
	buf []byte
}

func (w *writer) u8(v byte)    { w.buf = append(w.buf, v) }
func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) str(s string) {
	w.u8(byte(len(s)))
	w.raw([]byte(s))
}
