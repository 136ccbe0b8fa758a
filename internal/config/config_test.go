package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/improvctl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDaemonConfigAppliesDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `[device]
name = "bench-unit"
`)
	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Device.Name != "bench-unit" {
		t.Fatalf("device name %q", cfg.Device.Name)
	}
	if cfg.Serial.Baud != 115200 || cfg.Web.Port != 8080 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.APAddress().String() != "192.168.4.1" {
		t.Fatalf("ap addr %v", cfg.APAddress())
	}
}

func TestLoadDaemonConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad ap addr":   "[network]\nap_addr = \"not-an-ip\"\n",
		"bad scheme":    "[network]\nurl_scheme = \"gopher\"\n",
		"bad baud":      "[serial]\nbaud = -9600\n",
		"bad port":      "[web]\nport = 70000\n",
		"sim no ssid":   "[[sim_networks]]\nrssi = -50\n",
		"not even toml": "{ json }",
	}
	for name, body := range cases {
		if _, err := LoadDaemonConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: config accepted", name)
		}
	}
}

func TestSupervisorTimingsOverrides(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultDaemonConfig()
	cfg.Timings.SettleDelayMs = 10
	cfg.Timings.AddrWaitTimeoutMs = 30000

	tm := cfg.SupervisorTimings()
	if tm.SettleDelay != 10*time.Millisecond {
		t.Fatalf("settle delay %v", tm.SettleDelay)
	}
	if tm.AddrWaitTimeout != 30*time.Second {
		t.Fatalf("addr wait timeout %v", tm.AddrWaitTimeout)
	}
	// untouched fields keep the built-in values
	if tm.ReconnectDelay != time.Second {
		t.Fatalf("reconnect delay %v", tm.ReconnectDelay)
	}
}

func TestTemplatesRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{"daemon", "sim"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("%s template overwrote without force", kind)
		}
		cfg, err := LoadDaemonConfig(path)
		if err != nil {
			t.Fatalf("load %s template: %v", kind, err)
		}
		if cfg.Device.Name == "" {
			t.Fatalf("%s template missing device name", kind)
		}
	}
	if _, err := Template("mystery"); err == nil {
		t.Fatalf("unknown template kind accepted")
	}
}
