// Package config loads line follower settings from file, environment and
// defaults.
//
// Lookup order, lowest to highest precedence: built-in defaults, a
// follower.{yaml,toml,json} file (in "." or "./configs", or an explicit
// path), then LINEFOLLOWER_* environment variables. Commands apply their
// flags on top and call Validate again.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-linefollower/pkg/follower"
	"github.com/teslashibe/go-linefollower/pkg/vision"
)

// Default endpoints for the bench setup: a phone camera stream and the
// ESP32 motor controller.
const (
	DefaultStream      = "http://172.20.10.2:6712/video"
	DefaultActuatorURL = "http://172.20.10.7:80"
)

// Config is the full runtime configuration.
type Config struct {
	Stream      string        `mapstructure:"stream" validate:"required"`
	ActuatorURL string        `mapstructure:"actuator_url" validate:"required,url"`
	SendTimeout time.Duration `mapstructure:"send_timeout" validate:"gt=0,lte=500ms"`
	Dashboard   string        `mapstructure:"dashboard"` // empty disables the dashboard
	LogLevel    string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Debug       bool          `mapstructure:"debug"`
	DebugVision bool          `mapstructure:"debug_vision"`
	Heartbeat   string        `mapstructure:"heartbeat" validate:"omitempty,cronspec"`

	Follower FollowerConfig `mapstructure:"follower"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Overlay  OverlayConfig  `mapstructure:"overlay"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// FollowerConfig tunes the control loop.
type FollowerConfig struct {
	Preset          string        `mapstructure:"preset" validate:"oneof=default responsive"`
	DeadZone        int           `mapstructure:"dead_zone" validate:"gte=0"`
	TurnThreshold   int           `mapstructure:"turn_threshold" validate:"gtfield=DeadZone"`
	HistorySize     int           `mapstructure:"history_size" validate:"gte=1"`
	Cooldown        time.Duration `mapstructure:"cooldown" validate:"gte=0"`
	NoLineThreshold int           `mapstructure:"no_line_threshold" validate:"gte=0"`
	ReferenceRatio  float64       `mapstructure:"reference_ratio" validate:"gt=0,lt=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// VisionConfig tunes line segmentation.
type VisionConfig struct {
	LowerHSV    []float64 `mapstructure:"lower_hsv" validate:"len=3,dive,gte=0,lte=255"`
	UpperHSV    []float64 `mapstructure:"upper_hsv" validate:"len=3,dive,gte=0,lte=255"`
	MinArea     float64   `mapstructure:"min_area" validate:"gte=0"`
	KernelSize  int       `mapstructure:"kernel_size" validate:"gte=1,lte=31"`
	ROIFraction float64   `mapstructure:"roi_fraction" validate:"gt=0,lte=1"`
}

// CaptureConfig is applied to the camera on open.
type CaptureConfig struct {
	Width      int `mapstructure:"width" validate:"gte=0"`
	Height     int `mapstructure:"height" validate:"gte=0"`
	BufferSize int `mapstructure:"buffer_size" validate:"gte=0"`
}

// OverlayConfig controls the dashboard camera feed.
type OverlayConfig struct {
	Quality int `mapstructure:"quality" validate:"gte=1,lte=100"`
	MaxFPS  int `mapstructure:"max_fps" validate:"gte=0"`
}

// TracingConfig toggles OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}

// Load reads configuration. path may be empty to search the default
// locations; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("follower")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if v.GetString("follower.preset") == "responsive" {
		setFollowerDefaults(v, follower.ResponsiveConfig())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	fc := follower.DefaultConfig()
	sc := vision.DefaultSegmenterConfig()
	cc := vision.DefaultCaptureOptions()
	oc := vision.DefaultOverlayOptions()

	v.SetDefault("stream", DefaultStream)
	v.SetDefault("actuator_url", DefaultActuatorURL)
	v.SetDefault("send_timeout", "500ms")
	v.SetDefault("dashboard", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("debug_vision", false)
	v.SetDefault("heartbeat", "@every 5s")

	v.SetDefault("follower.preset", "default")
	setFollowerDefaults(v, fc)

	v.SetDefault("vision.lower_hsv", sc.LowerHSV[:])
	v.SetDefault("vision.upper_hsv", sc.UpperHSV[:])
	v.SetDefault("vision.min_area", sc.MinArea)
	v.SetDefault("vision.kernel_size", sc.KernelSize)
	v.SetDefault("vision.roi_fraction", sc.ROIFraction)

	v.SetDefault("capture.width", cc.Width)
	v.SetDefault("capture.height", cc.Height)
	v.SetDefault("capture.buffer_size", cc.BufferSize)

	v.SetDefault("overlay.quality", oc.Quality)
	v.SetDefault("overlay.max_fps", oc.MaxFPS)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "linefollower")
}

// setFollowerDefaults installs a loop preset underneath file and env values.
func setFollowerDefaults(v *viper.Viper, fc follower.Config) {
	v.SetDefault("follower.dead_zone", fc.DeadZone)
	v.SetDefault("follower.turn_threshold", fc.TurnThreshold)
	v.SetDefault("follower.history_size", fc.HistorySize)
	v.SetDefault("follower.cooldown", fc.Cooldown)
	v.SetDefault("follower.no_line_threshold", fc.NoLineThreshold)
	v.SetDefault("follower.reference_ratio", fc.ReferenceRatio)
	v.SetDefault("follower.shutdown_timeout", fc.ShutdownTimeout)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return val
}

// Validate checks every field. Errors name the offending config keys.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// LoopConfig returns the control loop settings.
func (c *Config) LoopConfig() follower.Config {
	return follower.Config{
		DeadZone:        c.Follower.DeadZone,
		TurnThreshold:   c.Follower.TurnThreshold,
		HistorySize:     c.Follower.HistorySize,
		Cooldown:        c.Follower.Cooldown,
		NoLineThreshold: c.Follower.NoLineThreshold,
		ReferenceRatio:  c.Follower.ReferenceRatio,
		ShutdownTimeout: c.Follower.ShutdownTimeout,
	}
}

// SegmenterConfig returns the segmentation thresholds.
func (c *Config) SegmenterConfig() vision.SegmenterConfig {
	sc := vision.SegmenterConfig{
		MinArea:     c.Vision.MinArea,
		KernelSize:  c.Vision.KernelSize,
		ROIFraction: c.Vision.ROIFraction,
	}
	copy(sc.LowerHSV[:], c.Vision.LowerHSV)
	copy(sc.UpperHSV[:], c.Vision.UpperHSV)
	return sc
}

// CaptureOptions returns the camera settings.
func (c *Config) CaptureOptions() vision.CaptureOptions {
	return vision.CaptureOptions{
		Width:      c.Capture.Width,
		Height:     c.Capture.Height,
		BufferSize: c.Capture.BufferSize,
	}
}

// OverlayOptions returns the camera feed settings.
func (c *Config) OverlayOptions() vision.OverlayOptions {
	return vision.OverlayOptions{
		Quality: c.Overlay.Quality,
		MaxFPS:  c.Overlay.MaxFPS,
	}
}
