package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ActuatorURL != DefaultActuatorURL {
		t.Errorf("ActuatorURL = %q", cfg.ActuatorURL)
	}
	if cfg.SendTimeout != 500*time.Millisecond {
		t.Errorf("SendTimeout = %v, want 500ms", cfg.SendTimeout)
	}

	lc := cfg.LoopConfig()
	if lc.DeadZone != 40 || lc.TurnThreshold != 80 || lc.HistorySize != 5 {
		t.Errorf("bands = %+v", lc)
	}
	if lc.Cooldown != 800*time.Millisecond || lc.NoLineThreshold != 10 {
		t.Errorf("gating = %v / %d", lc.Cooldown, lc.NoLineThreshold)
	}
	if lc.ReferenceRatio != 0.25 || lc.ShutdownTimeout != time.Second {
		t.Errorf("reference/shutdown = %v / %v", lc.ReferenceRatio, lc.ShutdownTimeout)
	}

	sc := cfg.SegmenterConfig()
	if sc.UpperHSV != [3]float64{180, 255, 50} || sc.LowerHSV != [3]float64{0, 0, 0} {
		t.Errorf("hsv = %v..%v", sc.LowerHSV, sc.UpperHSV)
	}
	if sc.MinArea != 500 || sc.KernelSize != 5 || sc.ROIFraction != 0.5 {
		t.Errorf("segmenter = %+v", sc)
	}

	co := cfg.CaptureOptions()
	if co.Width != 640 || co.Height != 480 || co.BufferSize != 1 {
		t.Errorf("capture = %+v", co)
	}
}

func TestDefault_MatchesLoad(t *testing.T) {
	d := Default()
	if err := d.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	if d.Heartbeat != "@every 5s" || d.Dashboard != ":8080" {
		t.Errorf("Default = %+v", d)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "follower.yaml", `
stream: "0"
actuator_url: http://192.168.4.1
send_timeout: 300ms
follower:
  dead_zone: 25
  turn_threshold: 70
  cooldown: 1.2s
vision:
  upper_hsv: [180, 255, 70]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stream != "0" || cfg.ActuatorURL != "http://192.168.4.1" {
		t.Errorf("endpoints = %q %q", cfg.Stream, cfg.ActuatorURL)
	}
	if cfg.SendTimeout != 300*time.Millisecond {
		t.Errorf("SendTimeout = %v", cfg.SendTimeout)
	}
	if cfg.Follower.DeadZone != 25 || cfg.Follower.TurnThreshold != 70 {
		t.Errorf("bands = %d/%d", cfg.Follower.DeadZone, cfg.Follower.TurnThreshold)
	}
	if cfg.Follower.Cooldown != 1200*time.Millisecond {
		t.Errorf("Cooldown = %v", cfg.Follower.Cooldown)
	}
	// Unset keys keep their defaults.
	if cfg.Follower.HistorySize != 5 {
		t.Errorf("HistorySize = %d, want default 5", cfg.Follower.HistorySize)
	}
	if got := cfg.SegmenterConfig().UpperHSV; got != [3]float64{180, 255, 70} {
		t.Errorf("UpperHSV = %v", got)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "follower.yaml", "actuator_url: http://192.168.4.1\n")
	t.Setenv("LINEFOLLOWER_ACTUATOR_URL", "http://10.0.0.9:80")
	t.Setenv("LINEFOLLOWER_FOLLOWER_NO_LINE_THRESHOLD", "20")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ActuatorURL != "http://10.0.0.9:80" {
		t.Errorf("ActuatorURL = %q, want env value", cfg.ActuatorURL)
	}
	if cfg.Follower.NoLineThreshold != 20 {
		t.Errorf("NoLineThreshold = %d, want 20", cfg.Follower.NoLineThreshold)
	}
}

func TestLoad_ResponsivePreset(t *testing.T) {
	path := writeFile(t, "follower.yaml", `
follower:
  preset: responsive
  dead_zone: 35
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Follower.DeadZone != 35 {
		t.Errorf("DeadZone = %d, explicit value should win", cfg.Follower.DeadZone)
	}
	if cfg.Follower.TurnThreshold != 60 || cfg.Follower.HistorySize != 3 {
		t.Errorf("preset not applied: %+v", cfg.Follower)
	}
	if cfg.Follower.Cooldown != 400*time.Millisecond {
		t.Errorf("Cooldown = %v, want 400ms", cfg.Follower.Cooldown)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"turn threshold not above dead zone", func(c *Config) { c.Follower.TurnThreshold = 40 }, "TurnThreshold"},
		{"send timeout above actuator limit", func(c *Config) { c.SendTimeout = time.Second }, "SendTimeout"},
		{"zero send timeout", func(c *Config) { c.SendTimeout = 0 }, "SendTimeout"},
		{"bad actuator url", func(c *Config) { c.ActuatorURL = "not a url" }, "ActuatorURL"},
		{"empty stream", func(c *Config) { c.Stream = "" }, "Stream"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"bad heartbeat", func(c *Config) { c.Heartbeat = "every five" }, "Heartbeat"},
		{"history zero", func(c *Config) { c.Follower.HistorySize = 0 }, "HistorySize"},
		{"reference ratio one", func(c *Config) { c.Follower.ReferenceRatio = 1 }, "ReferenceRatio"},
		{"hsv wrong length", func(c *Config) { c.Vision.LowerHSV = []float64{0, 0} }, "LowerHSV"},
		{"unknown preset", func(c *Config) { c.Follower.Preset = "turbo" }, "Preset"},
		{"tracing without name", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.ServiceName = ""
		}, "ServiceName"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantKey) {
				t.Errorf("error %q does not name %s", err, tc.wantKey)
			}
		})
	}
}

func TestValidate_HeartbeatOptional(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty heartbeat should disable it: %v", err)
	}
}

func TestFile(t *testing.T) {
	if got := File("follower.yaml"); got != "follower.yaml" {
		t.Errorf("File = %q, want default", got)
	}
	t.Setenv("LINEFOLLOWER_CONFIG", "/etc/linefollower.toml")
	if got := File("follower.yaml"); got != "/etc/linefollower.toml" {
		t.Errorf("File = %q, want env value", got)
	}
}
