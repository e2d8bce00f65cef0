package app

import (
	"testing"
	"time"

	"github.com/tipster-link/internal/config"
)

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := normalizeOptions(Options{Mode: "  API "})
	if opts.Mode != ModeAPI {
		t.Fatalf("mode want %s got %s", ModeAPI, opts.Mode)
	}
	if opts.ShutdownTimeout != 10*time.Second {
		t.Fatalf("shutdown timeout want 10s got %s", opts.ShutdownTimeout)
	}
	if opts.Logger == nil || len(opts.Signals) == 0 {
		t.Fatalf("logger and signals should be defaulted")
	}
	if normalizeOptions(Options{}).Mode != ModeAll {
		t.Fatalf("empty mode should default to all")
	}
}

func TestValidateMode(t *testing.T) {
	for _, mode := range []string{ModeAll, ModeAPI, ModeWorker} {
		if err := ValidateMode(mode); err != nil {
			t.Fatalf("mode %s should be valid: %v", mode, err)
		}
	}
	if err := ValidateMode("scheduler"); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
	if _, err := BuildRunner(config.Default(), "scheduler"); err == nil {
		t.Fatalf("build runner should reject unknown mode")
	}
}

func TestNewHTTPServiceTimeouts(t *testing.T) {
	svc := NewHTTPService(config.ServerConfig{Host: "127.0.0.1", Port: "0", ReadTimeoutSeconds: 5}, nil)
	if svc.server.Addr != "127.0.0.1:0" {
		t.Fatalf("addr want 127.0.0.1:0 got %s", svc.server.Addr)
	}
	if svc.server.ReadTimeout != 5*time.Second || svc.server.WriteTimeout != 0 {
		t.Fatalf("unexpected timeouts read=%s write=%s", svc.server.ReadTimeout, svc.server.WriteTimeout)
	}
	if svc.Name() != "http" {
		t.Fatalf("name want http got %s", svc.Name())
	}
}
