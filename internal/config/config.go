package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/improvctl/internal/provision"
)

type DaemonConfig struct {
	Device   DeviceConfig  `toml:"device"`
	Serial   SerialConfig  `toml:"serial"`
	Store    StoreConfig   `toml:"store"`
	Web      WebConfig     `toml:"web"`
	Network  NetworkConfig `toml:"network"`
	Timings  TimingsConfig `toml:"timings"`
	Networks []SimNetwork  `toml:"sim_networks"`
}

type DeviceConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Chip    string `toml:"chip"`
	Model   string `toml:"model"`
}

type SerialConfig struct {
	// Device is the serial port path. Empty means the process stdio.
	Device string `toml:"device"`
	Baud   int    `toml:"baud"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type WebConfig struct {
	Port        int      `toml:"port"`
	CorsOrigins []string `toml:"cors_origins"`
}

type NetworkConfig struct {
	APAddr    string `toml:"ap_addr"`
	URLScheme string `toml:"url_scheme"`
}

// TimingsConfig overrides the state machine delays, in milliseconds.
// Zero fields keep the built-in values; addr_wait_timeout_ms zero means
// wait forever.
type TimingsConfig struct {
	SettleDelayMs     int `toml:"settle_delay_ms"`
	HelloTimeoutMs    int `toml:"hello_timeout_ms"`
	LinkPollMs        int `toml:"link_poll_ms"`
	AddrPollMs        int `toml:"addr_poll_ms"`
	AddrWaitTimeoutMs int `toml:"addr_wait_timeout_ms"`
	ReconnectDelayMs  int `toml:"reconnect_delay_ms"`
}

// SimNetwork describes one network the simulated radio can reach, for
// host runs without hardware.
type SimNetwork struct {
	SSID     string `toml:"ssid"`
	Password string `toml:"password"`
	RSSI     int    `toml:"rssi"`
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

// DefaultDaemonConfig is the configuration used when no file is given.
func DefaultDaemonConfig() DaemonConfig {
	var cfg DaemonConfig
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *DaemonConfig) {
	if cfg.Device.Name == "" {
		cfg.Device.Name = "improvctl"
	}
	if cfg.Device.Version == "" {
		cfg.Device.Version = "0.0.1"
	}
	if cfg.Device.Chip == "" {
		cfg.Device.Chip = "ESP32S3"
	}
	if cfg.Device.Model == "" {
		cfg.Device.Model = "WT32-SC01-Plus"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "improvctl-credentials.json"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Network.APAddr == "" {
		cfg.Network.APAddr = "192.168.4.1"
	}
	if cfg.Network.URLScheme == "" {
		cfg.Network.URLScheme = "http"
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Device.Name) == "" {
		return fmt.Errorf("device config missing name")
	}
	if cfg.Serial.Baud <= 0 {
		return fmt.Errorf("serial baud must be positive, got %d", cfg.Serial.Baud)
	}
	if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
		return fmt.Errorf("web port out of range: %d", cfg.Web.Port)
	}
	if _, err := netip.ParseAddr(cfg.Network.APAddr); err != nil {
		return fmt.Errorf("network ap_addr invalid: %w", err)
	}
	switch cfg.Network.URLScheme {
	case "http", "https":
	default:
		return fmt.Errorf("network url_scheme must be http or https, got %q", cfg.Network.URLScheme)
	}
	for i, n := range cfg.Networks {
		if strings.TrimSpace(n.SSID) == "" {
			return fmt.Errorf("sim_networks[%d] missing ssid", i)
		}
	}
	return nil
}

// APAddress returns the parsed access-point address. ValidateDaemonConfig
// has already checked it.
func (c DaemonConfig) APAddress() netip.Addr {
	addr, _ := netip.ParseAddr(c.Network.APAddr)
	return addr
}

// SupervisorTimings maps the millisecond overrides onto the built-in
// delays. addr_wait_timeout_ms is taken as-is, zero meaning no deadline.
func (c DaemonConfig) SupervisorTimings() provision.Timings {
	t := provision.DefaultTimings()
	if c.Timings.SettleDelayMs > 0 {
		t.SettleDelay = time.Duration(c.Timings.SettleDelayMs) * time.Millisecond
	}
	if c.Timings.HelloTimeoutMs > 0 {
		t.HelloTimeout = time.Duration(c.Timings.HelloTimeoutMs) * time.Millisecond
	}
	if c.Timings.LinkPollMs > 0 {
		t.LinkPollInterval = time.Duration(c.Timings.LinkPollMs) * time.Millisecond
	}
	if c.Timings.AddrPollMs > 0 {
		t.AddrPollInterval = time.Duration(c.Timings.AddrPollMs) * time.Millisecond
	}
	t.AddrWaitTimeout = time.Duration(c.Timings.AddrWaitTimeoutMs) * time.Millisecond
	if c.Timings.ReconnectDelayMs > 0 {
		t.ReconnectDelay = time.Duration(c.Timings.ReconnectDelayMs) * time.Millisecond
	}
	return t
}
