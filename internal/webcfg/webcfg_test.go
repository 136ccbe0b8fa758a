package webcfg

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/improvctl/internal/provision"
	"github.com/danmuck/improvctl/internal/testutil/testlog"
)

func testServer(t *testing.T, status StatusFunc) *Server {
	t.Helper()
	return New(Config{
		Info: provision.DeviceInfo{
			FirmwareName:    "improvctl",
			FirmwareVersion: "1.2.3",
			Chip:            "ESP32S3",
			Model:           "WT32-SC01-Plus",
		},
		Status: status,
		Logger: zerolog.New(zerolog.NewTestWriter(t)),
	})
}

func getJSON(t *testing.T, r http.Handler, path string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET %s: %d body=%s", path, rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return body
}

func TestHealthReportsMode(t *testing.T) {
	testlog.Start(t)
	s := testServer(t, nil)
	body := getJSON(t, s.router(provision.WebModeAP), "/health")
	if body["status"] != "ok" || body["mode"] != "ap" {
		t.Fatalf("health body %v", body)
	}
	body = getJSON(t, s.router(provision.WebModeSTA), "/health")
	if body["mode"] != "sta" {
		t.Fatalf("health body %v", body)
	}
}

func TestDeviceRouteReportsIdentity(t *testing.T) {
	testlog.Start(t)
	s := testServer(t, nil)
	body := getJSON(t, s.router(provision.WebModeAP), "/api/device")
	if body["firmware"] != "improvctl" || body["chip"] != "ESP32S3" {
		t.Fatalf("device body %v", body)
	}
}

func TestNetworkRouteUsesStatusFunc(t *testing.T) {
	testlog.Start(t)
	s := testServer(t, func() NetworkStatus {
		return NetworkStatus{State: "connected", SSID: "lab-net", Addr: "192.168.1.77"}
	})
	body := getJSON(t, s.router(provision.WebModeSTA), "/api/network")
	if body["state"] != "connected" || body["ssid"] != "lab-net" {
		t.Fatalf("network body %v", body)
	}

	bare := testServer(t, nil)
	body = getJSON(t, bare.router(provision.WebModeAP), "/api/network")
	if body["state"] != "unknown" {
		t.Fatalf("network body without status func: %v", body)
	}
}
