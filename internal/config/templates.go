package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon":
		return daemonTemplate, nil
	case "sim":
		return simTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `[device]
name = "improvctl"
version = "0.0.1"
chip = "ESP32S3"
model = "WT32-SC01-Plus"

[serial]
device = "/dev/ttyUSB0"
baud = 115200

[store]
path = "/var/lib/improvctl/credentials.json"

[web]
port = 8080
cors_origins = ["*"]

[network]
ap_addr = "192.168.4.1"
url_scheme = "http"

[timings]
# zero keeps the built-in value; addr_wait_timeout_ms zero waits forever
settle_delay_ms = 0
hello_timeout_ms = 0
link_poll_ms = 0
addr_poll_ms = 0
addr_wait_timeout_ms = 0
reconnect_delay_ms = 0
`

const simTemplate = `[device]
name = "improvctl"
version = "0.0.1"

[serial]
device = ""
baud = 115200

[store]
path = "improvctl-credentials.json"

[web]
port = 8080

[network]
ap_addr = "192.168.4.1"
url_scheme = "http"

[[sim_networks]]
ssid = "lab-net"
password = "hunter2"
rssi = -55

[[sim_networks]]
ssid = "guest-net"
password = ""
rssi = -70
`
