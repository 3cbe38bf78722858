package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "hexfleet.toml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadOverlaysDefaults(t *testing.T) {
	p := writeConfig(t, `
[simulator]
address = "sumo:7000"

[tick]
rate = "250ms"
max_ticks = 40

[identity]
policy = "fresh"

[geo]
projection = "offset"
net_offset_x = -640000.5
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulator.Address != "sumo:7000" {
		t.Errorf("address = %q", cfg.Simulator.Address)
	}
	if cfg.Tick.Rate != 250*time.Millisecond || cfg.Tick.MaxTicks != 40 {
		t.Errorf("tick = %+v", cfg.Tick)
	}
	if cfg.Identity.Policy != "fresh" {
		t.Errorf("policy = %q", cfg.Identity.Policy)
	}
	if cfg.Geo.Projection != "offset" || cfg.Geo.NetOffsetX != -640000.5 {
		t.Errorf("geo = %+v", cfg.Geo)
	}
	// untouched sections keep their defaults
	if cfg.Grid.Radius != 0.0025 {
		t.Errorf("radius = %g", cfg.Grid.Radius)
	}
	if cfg.Simulator.IOTimeout != 10*time.Second {
		t.Errorf("io timeout = %s", cfg.Simulator.IOTimeout)
	}
	if cfg.Server.StartTime == 0 {
		t.Error("start time not set")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":        "[tick\nrate = 1",
		"zero rate":     "[tick]\nrate = \"0s\"",
		"negative size": "[identity]\nmax_entries = -1",
		"negative r":    "[grid]\nradius = -0.1",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFlushIntervalFloor(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[database]\nflush_interval = 0"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.FlushInterval != 1 {
		t.Fatalf("flush interval = %d", cfg.Database.FlushInterval)
	}
}
