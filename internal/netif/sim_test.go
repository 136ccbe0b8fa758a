package netif

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/improvctl/internal/testutil/testlog"
)

func TestSimRadioConnectKnownNetwork(t *testing.T) {
	testlog.Start(t)
	r := NewSimRadio(SimNetwork{SSID: "lab-net", Password: "hunter2", RSSI: -55})

	if err := r.ConfigureSTA("lab-net", "hunter2"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !r.LinkUp() {
		t.Fatalf("link not up after connect")
	}
	if addr, ok := r.AddrV4(); !ok || !addr.IsValid() {
		t.Fatalf("no address after connect: %v %v", addr, ok)
	}
}

func TestSimRadioRejectsWrongPassword(t *testing.T) {
	testlog.Start(t)
	r := NewSimRadio(SimNetwork{SSID: "lab-net", Password: "hunter2"})
	r.ConfigureSTA("lab-net", "wrong")
	r.Start()
	if err := r.Connect(context.Background()); !errors.Is(err, ErrNoSuchNetwork) {
		t.Fatalf("connect: got %v, want ErrNoSuchNetwork", err)
	}
	if r.LinkUp() {
		t.Fatalf("link up after failed connect")
	}
}

func TestSimRadioScanReportsAuth(t *testing.T) {
	testlog.Start(t)
	r := NewSimRadio(
		SimNetwork{SSID: "open-net", RSSI: -70},
		SimNetwork{SSID: "lab-net", Password: "hunter2", RSSI: -55},
	)
	entries, err := r.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].AuthRequired || !entries[1].AuthRequired {
		t.Fatalf("auth flags wrong: %+v", entries)
	}
}
