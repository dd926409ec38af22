package server

import "testing"

func TestDefaultConfigPort(t *testing.T) {
	t.Setenv("PORT", "")
	cfg := DefaultConfig("b3lb", "8008")
	if cfg.Port != "8008" {
		t.Fatalf("default port = %q, want 8008", cfg.Port)
	}

	t.Setenv("PORT", "9090")
	cfg = DefaultConfig("b3lb", "8008")
	if cfg.Port != "9090" {
		t.Fatalf("PORT override ignored, got %q", cfg.Port)
	}
}
