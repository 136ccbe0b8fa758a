// improvd is the device-side daemon: it provisions Wi-Fi credentials
// over a serial peer, keeps the station connected, and serves the
// configuration endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/danmuck/improvctl/internal/config"
	"github.com/danmuck/improvctl/internal/logging"
	"github.com/danmuck/improvctl/internal/observability"
	"github.com/danmuck/improvctl/internal/provision"
	"github.com/danmuck/improvctl/internal/serialio"
	"github.com/danmuck/improvctl/internal/store"
	"github.com/danmuck/improvctl/internal/webcfg"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "improvd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("improvd", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to TOML config, built-in defaults when empty")
	serialDev := flags.String("serial", "", "serial device override, stdio when neither flag nor config set one")
	storePath := flags.String("store", "", "credential store path override")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	logging.ConfigureRuntime()
	logger := observability.InitLogger("improvd")

	cfg := config.DefaultDaemonConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadDaemonConfig(*configPath)
		if err != nil {
			return err
		}
	}
	if *serialDev != "" {
		cfg.Serial.Device = *serialDev
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	var transport provision.Transport
	if cfg.Serial.Device == "" {
		transport = serialio.Stdio{}
	} else {
		port, err := serialio.Open(cfg.Serial.Device, cfg.Serial.Baud)
		if err != nil {
			return err
		}
		defer port.Close()
		transport = port
	}

	info := provision.DeviceInfo{
		FirmwareName:    cfg.Device.Name,
		FirmwareVersion: cfg.Device.Version,
		Chip:            cfg.Device.Chip,
		Model:           cfg.Device.Model,
	}

	tracker := &statusTracker{}
	web := webcfg.New(webcfg.Config{
		Port:        cfg.Web.Port,
		CorsOrigins: cfg.Web.CorsOrigins,
		Info:        info,
		Status:      tracker.status,
		Logger:      logger,
	})
	defer web.Stop()

	sup, err := provision.New(provision.Config{
		Radio:     newRadio(cfg),
		Serial:    transport,
		Store:     store.NewFileStore(cfg.Store.Path),
		Web:       web,
		Info:      info,
		APAddr:    cfg.APAddress(),
		URLScheme: cfg.Network.URLScheme,
		Timings:   cfg.SupervisorTimings(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	sup.Subscribe(tracker.apply)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("shutting down")
	return nil
}

// statusTracker folds supervisor events into the view the configuration
// endpoint reports.
type statusTracker struct {
	mu      sync.Mutex
	current webcfg.NetworkStatus
}

func (t *statusTracker) apply(ev provision.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case provision.EventAddrAcquired:
		t.current.SSID = ev.SSID
		t.current.Addr = addrString(ev.Addr)
		if ev.Captive {
			t.current.State = "provisioning"
		} else {
			t.current.State = "connecting"
		}
	case provision.EventStationConnected:
		t.current.State = "connected"
	case provision.EventAddrLost:
		t.current.Addr = ""
	case provision.EventStationDisconnected:
		t.current.State = "disconnected"
	}
}

func (t *statusTracker) status() webcfg.NetworkStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func addrString(addr netip.Addr) string {
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}
