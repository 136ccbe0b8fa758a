package improv

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func mustWifiSettings(t *testing.T, ssid, password string) Frame {
	t.Helper()
	f, err := NewWifiSettings(ssid, password)
	if err != nil {
		t.Fatalf("NewWifiSettings: %v", err)
	}
	return f
}

func sampleFrames(t *testing.T) []Frame {
	t.Helper()
	info, err := NewDeviceInfoResult("improvctl", "0.3.1", "ESP32S3", "WT32-SC01-Plus")
	if err != nil {
		t.Fatalf("NewDeviceInfoResult: %v", err)
	}
	scan, err := NewScanResult("lab-net", -61, true)
	if err != nil {
		t.Fatalf("NewScanResult: %v", err)
	}
	redirect, err := NewRedirectResult("http://192.168.4.17")
	if err != nil {
		t.Fatalf("NewRedirectResult: %v", err)
	}
	return []Frame{
		NewCurrentState(StateReady),
		NewCurrentState(StateProvisioning),
		NewCurrentState(StateProvisioned),
		NewErrorState(ErrorNone),
		NewErrorState(ErrorUnableToConnect),
		NewErrorState(ErrorUnknown),
		NewCommand(OpRequestCurrentState),
		NewCommand(OpRequestDeviceInformation),
		NewCommand(OpRequestScannedWifiNetworks),
		mustWifiSettings(t, "lab-net", "hunter2"),
		mustWifiSettings(t, "", ""),
		info,
		scan,
		NewScanEndResult(),
		redirect,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, in := range sampleFrames(t) {
		raw := Encode(in)
		out, n, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode %#v: %v", in.Payload, err)
		}
		if n != len(raw) {
			t.Fatalf("decode consumed %d of %d bytes", n, len(raw))
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch: in=%#v out=%#v", in.Payload, out.Payload)
		}
	}
}

func TestEncodeReadyStateExactBytes(t *testing.T) {
	raw := Encode(NewCurrentState(StateReady))
	want := []byte{'I', 'M', 'P', 'R', 'O', 'V', 0x01, 0x01, 0x01, 0x02, 0x00, 0x0A}
	want[10] = additiveChecksum(want[:10])
	if !bytes.Equal(raw, want) {
		t.Fatalf("encoded bytes mismatch:\n got=%x\nwant=%x", raw, want)
	}
}

func TestDecodeStrictPrefixIsIncomplete(t *testing.T) {
	for _, in := range sampleFrames(t) {
		raw := Encode(in)
		for i := 0; i < len(raw); i++ {
			_, _, err := Decode(raw[:i])
			if !errors.Is(err, ErrIncomplete) {
				t.Fatalf("prefix len=%d of %x: got %v, want ErrIncomplete", i, raw, err)
			}
		}
	}
}

func TestDecodeTrailingBytesLeftAlone(t *testing.T) {
	first := Encode(NewCurrentState(StateReady))
	second := Encode(NewCommand(OpRequestDeviceInformation))
	buf := append(append([]byte{}, first...), second...)

	out, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(first) {
		t.Fatalf("consumed %d bytes, want %d", n, len(first))
	}
	if _, ok := out.Payload.(CurrentState); !ok {
		t.Fatalf("unexpected payload %#v", out.Payload)
	}
	if _, n2, err := Decode(buf[n:]); err != nil || n2 != len(second) {
		t.Fatalf("second decode: n=%d err=%v", n2, err)
	}
}

func TestDecodeChecksumMutation(t *testing.T) {
	raw := Encode(mustWifiSettings(t, "lab-net", "hunter2"))
	// Every byte before the checksum byte is covered by it. A mutation must
	// never yield a valid frame. Length-byte mutations can report Incomplete
	// on a lone frame (the parser is waiting for bytes that will never
	// arrive); everything else must be a hard error.
	for i := 0; i < len(raw)-2; i++ {
		mutated := append([]byte{}, raw...)
		mutated[i] ^= 0x20
		if _, _, err := Decode(mutated); err == nil {
			t.Fatalf("mutation at %d decoded successfully", i)
		}
	}

	// Mutating a password byte keeps every enum valid, so the checksum is
	// the only guard.
	mutated := append([]byte{}, raw...)
	mutated[len(mutated)-4] ^= 0x01
	if _, _, err := Decode(mutated); !errors.Is(err, ErrInvalidChecksum) {
		t.Fatalf("payload mutation: got %v, want ErrInvalidChecksum", err)
	}
}

func TestDecodeInvalidEnumBytes(t *testing.T) {
	state := Encode(NewCurrentState(StateReady))
	state[9] = 0x7F
	state[10] = additiveChecksum(state[:10])
	if _, _, err := Decode(state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("bad state byte: got %v, want ErrInvalidState", err)
	}

	errFrame := Encode(NewErrorState(ErrorNone))
	errFrame[9] = 0x42
	errFrame[10] = additiveChecksum(errFrame[:10])
	if _, _, err := Decode(errFrame); !errors.Is(err, ErrInvalidError) {
		t.Fatalf("bad error byte: got %v, want ErrInvalidError", err)
	}

	cmd := Encode(NewCommand(OpRequestCurrentState))
	cmd[9] = 0x60
	cmd[11] = additiveChecksum(cmd[:11])
	if _, _, err := Decode(cmd); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("bad command byte: got %v, want ErrInvalidCommand", err)
	}

	typ := Encode(NewCurrentState(StateReady))
	typ[7] = 0x09
	typ[10] = additiveChecksum(typ[:10])
	if _, _, err := Decode(typ); !errors.Is(err, ErrInvalidPayloadType) {
		t.Fatalf("bad type byte: got %v, want ErrInvalidPayloadType", err)
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	raw := Encode(NewCurrentState(StateReady))
	raw[0] = 'X'
	if _, _, err := Decode(raw); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("bad magic: got %v, want ErrInvalidMagic", err)
	}

	// A wrong version byte is a magic mismatch too, and it must be
	// reported even from a short buffer once the mismatch is visible.
	short := []byte{'I', 'M', 'P', 'R', 'O', 'V', 0x02}
	if _, _, err := Decode(short); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("bad version: got %v, want ErrInvalidMagic", err)
	}
}

func TestDecodeInvalidUTF8String(t *testing.T) {
	raw := Encode(mustWifiSettings(t, "ab", ""))
	// Replace the two ssid bytes with an invalid utf-8 sequence and fix up
	// the checksum so only string validation can complain.
	i := bytes.Index(raw, []byte("ab"))
	if i < 0 {
		t.Fatalf("ssid bytes not found in %x", raw)
	}
	raw[i], raw[i+1] = 0xFF, 0xFE
	raw[len(raw)-2] = additiveChecksum(raw[:len(raw)-2])
	if _, _, err := Decode(raw); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("invalid utf-8: got %v, want ErrInvalidUTF8", err)
	}
}

func TestWifiSettingsRoundTripLongStrings(t *testing.T) {
	ssid := strings.Repeat("s", 120)
	password := strings.Repeat("p", 120)
	f := mustWifiSettings(t, ssid, password)
	out, _, err := Decode(Encode(f))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cmd, ok := out.Payload.(Command)
	if !ok {
		t.Fatalf("unexpected payload %#v", out.Payload)
	}
	if cmd.SSID != ssid || cmd.Password != password {
		t.Fatalf("string mismatch after round trip")
	}
}

func TestWifiSettingsConstructionLimits(t *testing.T) {
	if _, err := NewWifiSettings(strings.Repeat("s", 256), ""); !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("oversize ssid: got %v, want ErrStringTooLong", err)
	}
	if _, err := NewWifiSettings(strings.Repeat("s", 200), strings.Repeat("p", 200)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("oversize pair: got %v, want ErrPayloadTooLarge", err)
	}
}

func TestResultEmptyStringsIsTerminalMarker(t *testing.T) {
	out, _, err := Decode(Encode(NewScanEndResult()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res, ok := out.Payload.(Result)
	if !ok {
		t.Fatalf("unexpected payload %#v", out.Payload)
	}
	if res.RespondsTo != OpRequestScannedWifiNetworks || len(res.Strings) != 0 {
		t.Fatalf("unexpected terminal marker %#v", res)
	}
}

func TestResyncDiscardsThroughTerminator(t *testing.T) {
	garbage := []byte{0x01, 0x02, Terminator, 'I', 'M'}
	rest, discarded := Resync(garbage)
	if !bytes.Equal(discarded, []byte{0x01, 0x02, Terminator}) {
		t.Fatalf("unexpected discarded span %x", discarded)
	}
	if !bytes.Equal(rest, []byte{'I', 'M'}) {
		t.Fatalf("unexpected remainder %x", rest)
	}

	rest, discarded = Resync([]byte{0x01, 0x02, 0x03})
	if rest != nil || !bytes.Equal(discarded, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("terminator-free buffer not fully discarded: rest=%x discarded=%x", rest, discarded)
	}
}

func TestResyncThenDecodeRecovers(t *testing.T) {
	valid := Encode(NewCommand(OpRequestCurrentState))
	buf := append([]byte{0xDE, 0xAD, Terminator}, valid...)

	_, _, err := Decode(buf)
	if err == nil || errors.Is(err, ErrIncomplete) {
		t.Fatalf("corrupt prefix: got %v, want hard decode error", err)
	}
	rest, _ := Resync(buf)
	out, n, err := Decode(rest)
	if err != nil || n != len(valid) {
		t.Fatalf("decode after resync: n=%d err=%v", n, err)
	}
	cmd, ok := out.Payload.(Command)
	if !ok || cmd.Op != OpRequestCurrentState {
		t.Fatalf("unexpected payload %#v", out.Payload)
	}
}
