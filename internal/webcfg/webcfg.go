// Package webcfg serves the device configuration endpoint over HTTP. The
// supervisor starts it on the access-point address during provisioning
// and restarts it on the station address once the device is connected.
package webcfg

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/improvctl/internal/observability"
	"github.com/danmuck/improvctl/internal/provision"
)

// NetworkStatus is the live connectivity view reported on /api/network.
type NetworkStatus struct {
	State string `json:"state"`
	SSID  string `json:"ssid,omitempty"`
	Addr  string `json:"addr,omitempty"`
}

// StatusFunc supplies the current NetworkStatus. It is called on request,
// from HTTP handler goroutines, so implementations must be safe for that.
type StatusFunc func() NetworkStatus

type Config struct {
	// Port the endpoint listens on. Defaults to 8080.
	Port        int
	CorsOrigins []string
	Info        provision.DeviceInfo
	Status      StatusFunc
	Logger      zerolog.Logger
}

// Server is the configuration endpoint lifecycle. It satisfies the
// supervisor's WebConfig contract: Start binds to the given address,
// and a later Start replaces the previous listener.
type Server struct {
	cfg      Config
	appeared time.Time

	mu   sync.Mutex
	srv  *http.Server
	mode provision.WebMode
}

var _ provision.WebConfig = (*Server)(nil)

func New(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	observability.RegisterMetrics()
	return &Server{cfg: cfg, appeared: time.Now()}
}

// Start serves the endpoint on addr. An already-running listener is shut
// down first; the supervisor restarts the endpoint when the device moves
// from the access-point network to the station network.
func (s *Server) Start(mode provision.WebMode, addr netip.Addr) error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode

	srv := &http.Server{
		Addr:    net.JoinHostPort(addr.String(), strconv.Itoa(s.cfg.Port)),
		Handler: s.router(mode),
	}
	s.srv = srv

	go func() {
		s.cfg.Logger.Info().Str("addr", srv.Addr).Stringer("mode", mode).Msg("configuration endpoint up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error().Err(err).Msg("configuration endpoint failed")
		}
	}()
	return nil
}

// Stop shuts the listener down, letting in-flight requests finish.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("configuration endpoint shutdown failed")
	}
}

func (s *Server) router(mode provision.WebMode) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.cfg.Logger))
	r.Use(observability.RequestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies(nil)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"mode":    mode.String(),
			"version": s.cfg.Info.FirmwareVersion,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api/device", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"firmware": s.cfg.Info.FirmwareName,
			"version":  s.cfg.Info.FirmwareVersion,
			"chip":     s.cfg.Info.Chip,
			"model":    s.cfg.Info.Model,
		})
	})

	r.GET("/api/network", func(c *gin.Context) {
		status := NetworkStatus{State: "unknown"}
		if s.cfg.Status != nil {
			status = s.cfg.Status()
		}
		c.JSON(http.StatusOK, status)
	})

	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
