//go:build rp2350

package main

import (
	"log/slog"

	"github.com/danmuck/improvctl/internal/config"
	"github.com/danmuck/improvctl/internal/netif"
	"github.com/danmuck/improvctl/internal/provision"
)

// newRadio drives the on-board Wi-Fi chip.
func newRadio(cfg config.DaemonConfig) provision.Radio {
	return netif.NewCyw43Radio(cfg.Device.Name, slog.Default())
}
