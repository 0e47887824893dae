// Line follower: steers a two-motor robot along a dark line seen by a
// camera, sending forward/left/right/stop commands to its motor controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-linefollower/internal/config"
	"github.com/teslashibe/go-linefollower/pkg/app"
	"github.com/teslashibe/go-linefollower/pkg/follower"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	if err := a.Init(); err != nil {
		a.Shutdown()
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = a.Run(ctx)
	cancel()
	a.Shutdown()

	if err != nil {
		fmt.Fprintf(os.Stderr, "stopped: %v\n", err)
		if errors.Is(err, follower.ErrCapture) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	path := flag.String("config", config.File(""), "Config file (default: follower.{yaml,toml,json} in . or ./configs)")
	stream := flag.String("stream", "", "Camera device index, file or stream URL")
	actuator := flag.String("actuator", "", "Motor controller base URL")
	dashboard := flag.String("dashboard", "", "Dashboard listen address (\"off\" disables)")
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	debugVision := flag.Bool("debug-vision", false, "Log segmentation results on every frame")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}

	if *stream != "" {
		cfg.Stream = *stream
	}
	if *actuator != "" {
		cfg.ActuatorURL = *actuator
	}
	switch *dashboard {
	case "":
	case "off":
		cfg.Dashboard = ""
	default:
		cfg.Dashboard = *dashboard
	}
	if *debugFlag {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if *debugVision {
		cfg.DebugVision = true
	}
	return cfg, cfg.Validate()
}
