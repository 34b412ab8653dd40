package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hweber/emax-station/internal/coordinator"
	"github.com/hweber/emax-station/internal/emax"
	"github.com/hweber/emax-station/internal/store"
)

type stubSource struct {
	snap *emax.Snapshot
	err  error
}

func (s *stubSource) FetchRealtime(ctx context.Context) (*emax.Snapshot, error) {
	return s.snap, s.err
}

type stubVendor struct {
	history map[string]any
	devices []map[string]any
	profile map[string]any
	err     error
}

func (s *stubVendor) FetchHistory(ctx context.Context, startDate, endDate string) (map[string]any, error) {
	return s.history, s.err
}

func (s *stubVendor) ListDevices(ctx context.Context) ([]map[string]any, error) {
	return s.devices, s.err
}

func (s *stubVendor) Profile() map[string]any { return s.profile }

func testApp(t *testing.T, src coordinator.Source, vendor VendorAPI, refreshed bool) (*fiber.App, *coordinator.Coordinator, *store.MemoryStore) {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})

	memStore := store.NewMemoryStore(10, 0)
	coord := coordinator.New(src, memStore)
	if refreshed {
		if _, err := coord.Refresh(context.Background()); err != nil {
			t.Fatalf("priming refresh: %v", err)
		}
	}

	RegisterRoutes(app, Options{
		Coordinator:     coord,
		Vendor:          vendor,
		Store:           memStore,
		TemperatureUnit: "C",
		RequestTimeout:  time.Second,
	})
	return app, coord, memStore
}

func testSnapshot() *emax.Snapshot {
	temp := 98.6
	humidity := 40.0
	return &emax.Snapshot{
		DeviceMac: "AA:BB:CC",
		SensorDatas: []emax.SensorData{
			{Channel: 0, Type: emax.TypeTemperature, CurVal: &temp},
			{Channel: 5, Type: emax.TypeHumidity, CurVal: &humidity},
		},
	}
}

func doRequest(t *testing.T, app *fiber.App, method, target string) (*http.Response, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, target, err)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, body
}

func TestReadingsBeforeFirstRefresh(t *testing.T) {
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, &stubVendor{}, false)

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/readings")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before first refresh", resp.StatusCode)
	}
}

func TestReadingsReturnsResolvedSet(t *testing.T) {
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, &stubVendor{}, true)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/readings")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["temperatureUnit"] != "C" {
		t.Errorf("temperatureUnit = %v", body["temperatureUnit"])
	}

	channels, _ := body["channels"].([]any)
	if len(channels) != 2 || channels[0] != float64(0) || channels[1] != float64(5) {
		t.Errorf("channels = %v, want [0 5]", channels)
	}
	if readings, _ := body["readings"].([]any); len(readings) == 0 {
		t.Error("expected a non-empty reading set")
	}
}

func TestReadingsByChannel(t *testing.T) {
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, &stubVendor{}, true)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/readings/5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	readings, _ := body["readings"].([]any)
	for _, raw := range readings {
		r := raw.(map[string]any)
		if r["channel"] != float64(5) {
			t.Errorf("reading for channel %v leaked into channel 5 response", r["channel"])
		}
	}

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/readings/9")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown channel status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/readings/abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-integer channel status = %d, want 400", resp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	src := &stubSource{snap: testSnapshot()}
	app, coord, _ := testApp(t, src, &stubVendor{}, false)

	resp, _ := doRequest(t, app, http.MethodPost, "/api/v1/refresh")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if coord.State() != coordinator.HasData {
		t.Error("refresh endpoint did not populate the coordinator")
	}

	src.snap = nil
	src.err = fmt.Errorf("%w: deadline", emax.ErrTimeout)
	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/refresh")
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("timeout refresh status = %d, want 504", resp.StatusCode)
	}
	if body["kind"] != "timeout" {
		t.Errorf("failure kind = %v, want timeout", body["kind"])
	}
}

func TestHistoryValidation(t *testing.T) {
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, &stubVendor{history: map[string]any{"records": []any{}}}, true)

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/history")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing dates status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/history?start=2026-08-02&end=2026-08-01")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("reversed range status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/history?start=yesterday&end=today")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed dates status = %d, want 400", resp.StatusCode)
	}

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/history?start=2026-08-01&end=2026-08-02")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid range status = %d", resp.StatusCode)
	}
	if body["history"] == nil {
		t.Error("missing history payload")
	}
}

func TestHistoryVendorFailure(t *testing.T) {
	vendor := &stubVendor{err: fmt.Errorf("%w: device offline", emax.ErrVendor)}
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, vendor, true)

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/history?start=2026-08-01&end=2026-08-02")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("vendor failure status = %d, want 502", resp.StatusCode)
	}
}

func TestDevicesEndpoint(t *testing.T) {
	vendor := &stubVendor{devices: []map[string]any{{"deviceMac": "AA:BB"}}}
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, vendor, true)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/devices")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	devices, _ := body["devices"].([]any)
	if len(devices) != 1 {
		t.Errorf("devices = %v", body["devices"])
	}
}

func TestDeviceProfile(t *testing.T) {
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, &stubVendor{}, true)

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/device")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("profile before login status = %d, want 404", resp.StatusCode)
	}

	vendor := &stubVendor{profile: map[string]any{"nickname": "Home", "token": "abc123"}}
	app, _, _ = testApp(t, &stubSource{snap: testSnapshot()}, vendor, true)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/device")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["nickname"] != "Home" {
		t.Errorf("nickname = %v", body["nickname"])
	}
	if _, ok := body["token"]; ok {
		t.Error("token must not be exposed in the profile")
	}
}

func TestObservationsEndpoint(t *testing.T) {
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, &stubVendor{}, true)

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/observations")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing range status = %d, want 400", resp.StatusCode)
	}

	from := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/observations?from="+from+"&to="+to)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	observations, _ := body["observations"].([]any)
	if len(observations) != 1 {
		t.Errorf("observations = %d entries, want 1", len(observations))
	}

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/observations?from=2000-01-01T00:00:00Z&to=2000-01-02T00:00:00Z")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty range status = %d, want 404", resp.StatusCode)
	}
}

func TestChannelsEndpoint(t *testing.T) {
	app, _, _ := testApp(t, &stubSource{snap: testSnapshot()}, &stubVendor{}, true)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/channels")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	channels, _ := body["channels"].([]any)
	if len(channels) != 2 {
		t.Errorf("channels = %v", channels)
	}
}
