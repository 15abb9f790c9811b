package basler

import (
	"errors"
	"testing"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BackendConfig
		expect  string
		wantErr bool
	}{
		{"mock", BackendConfig{Kind: BackendMock}, "mock", false},
		{"replay", BackendConfig{Kind: BackendReplay, ReplayFiles: []string{"a.avi"}}, "replay", false},
		{"replay without files", BackendConfig{Kind: BackendReplay}, "", true},
		{"unknown", BackendConfig{Kind: "gige"}, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewBackend(tc.cfg, nil)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NewBackend: got %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && b.Name() != tc.expect {
				t.Errorf("Name: got %s, want %s", b.Name(), tc.expect)
			}
		})
	}
}

func TestNewBackend_Pylon(t *testing.T) {
	b, err := NewBackend(BackendConfig{Kind: BackendPylon}, nil)
	if errors.Is(err, ErrBackendUnavailable) {
		t.Skip("pylon backend not compiled in")
	}
	if err != nil {
		t.Skipf("pylon runtime unavailable: %v", err)
	}
	devices, err := b.Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) == 0 {
		t.Skip("no Basler camera attached")
	}
}
