package main

import (
	"time"

	"bambu-display/host"

	"github.com/urfave/cli/v2"
)

var FlagLogLevel = &cli.StringFlag{
	Name:     "log-level",
	EnvVars:  []string{"LOG_LEVEL"},
	Value:    "info",
	Required: false,
}

var FlagLogWriter = &cli.StringFlag{
	Name:     "log-writer",
	Usage:    "one of: [console, json]",
	EnvVars:  []string{"LOG_WRITER"},
	Value:    "console",
	Required: false,
}

var FlagConfig = &cli.StringFlag{
	Name:     "config",
	Usage:    "host ini file with one section per module",
	EnvVars:  []string{"MIRROR_CONFIG"},
	Required: true,
}

var FlagSection = &cli.StringSliceFlag{
	Name:     "section",
	Usage:    "only run these config sections, all by default",
	EnvVars:  []string{"MIRROR_SECTIONS"},
	Required: false,
}

var FlagOutput = &cli.StringFlag{
	Name:     "output",
	Usage:    "png file every frame is written to",
	EnvVars:  []string{"MIRROR_OUTPUT"},
	Value:    "mirror.png",
	Required: false,
}

var FlagWidth = &cli.IntFlag{
	Name:     "width",
	EnvVars:  []string{"MIRROR_WIDTH"},
	Value:    host.DefaultWidth,
	Required: false,
}

var FlagHeight = &cli.IntFlag{
	Name:     "height",
	EnvVars:  []string{"MIRROR_HEIGHT"},
	Value:    host.DefaultHeight,
	Required: false,
}

var FlagInterval = &cli.DurationFlag{
	Name:     "interval",
	Usage:    "refresh interval",
	EnvVars:  []string{"MIRROR_INTERVAL"},
	Value:    time.Second,
	Required: false,
}

var FlagMetricsAddr = &cli.StringFlag{
	Name:     "metrics-addr",
	Usage:    "serve /metrics and /health on this address, disabled when empty",
	EnvVars:  []string{"METRICS_ADDR"},
	Required: false,
}
