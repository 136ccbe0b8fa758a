//go:build !rp2350

package main

import (
	"github.com/danmuck/improvctl/internal/config"
	"github.com/danmuck/improvctl/internal/netif"
	"github.com/danmuck/improvctl/internal/provision"
)

// newRadio builds the simulated radio for host runs. The networks it can
// reach come from the sim_networks config section.
func newRadio(cfg config.DaemonConfig) provision.Radio {
	networks := make([]netif.SimNetwork, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		networks = append(networks, netif.SimNetwork{
			SSID:     n.SSID,
			Password: n.Password,
			RSSI:     n.RSSI,
		})
	}
	return netif.NewSimRadio(networks...)
}
