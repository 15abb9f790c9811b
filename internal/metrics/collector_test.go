package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-basler/pkg/basler"
)

func fixedStats() basler.Stats {
	return basler.Stats{
		Open:         true,
		Backend:      "mock",
		Device:       basler.DeviceInfo{ModelName: "acA1920-40uc", SerialNumber: "40000001"},
		Opens:        2,
		FramesRead:   120,
		NotGrabbing:  1,
		GrabFailures: 3,
		Timeouts:     4,
		LastBlockID:  125,
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(fixedStats)

	if n := testutil.CollectAndCount(c); n != 7 {
		t.Errorf("metric count: got %d, want 7", n)
	}

	expected := `
# HELP basler_camera_frames_read_total Frames delivered to the caller.
# TYPE basler_camera_frames_read_total counter
basler_camera_frames_read_total{backend="mock"} 120
# HELP basler_camera_open Whether the camera holds a device.
# TYPE basler_camera_open gauge
basler_camera_open{backend="mock",model="acA1920-40uc",serial="40000001"} 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"basler_camera_frames_read_total", "basler_camera_open")
	if err != nil {
		t.Error(err)
	}
}

func TestCollector_Closed(t *testing.T) {
	c := NewCollector(func() basler.Stats { return basler.Stats{Backend: "replay"} })

	expected := `
# HELP basler_camera_open Whether the camera holds a device.
# TYPE basler_camera_open gauge
basler_camera_open{backend="replay",model="",serial=""} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "basler_camera_open"); err != nil {
		t.Error(err)
	}
}

func TestHandler(t *testing.T) {
	h := Handler(NewRegistry(fixedStats))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"basler_camera_timeouts_total", "go_goroutines", "process_"} {
		if !strings.Contains(body, name) {
			t.Errorf("missing %s in output", name)
		}
	}
}
