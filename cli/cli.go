// Package cli wires up the ukhasx binary's subcommands, mirroring
// cli.go's shared-flag-var style and cli/api.go's "thin Action,
// delegate to a plain exported function" shape.
package cli

import (
	"fmt"
	"os"

	urfavecli "github.com/urfave/cli/v2"

	"github.com/hab-telemetry/ukhasx/internal/logging"
	"github.com/hab-telemetry/ukhasx/monitor"
)

var (
	payloadFlag = &urfavecli.StringFlag{
		Name:  "payload",
		Usage: "Path to a payload document (TOML or JSON)",
	}
	inputFlag = &urfavecli.StringFlag{
		Name:  "input",
		Usage: "Path to a file of raw serial bytes to replay",
	}
	plotPathFlag = &urfavecli.StringFlag{
		Name:  "plotPath",
		Usage: "Path where to save a session heatmap (e.g. '/path/to/heatmap.html'). If not provided, no plot is generated.",
	}
)

// App is the ukhasx command-line application.
var App = &urfavecli.App{
	Name:  "ukhasx",
	Usage: "UKHAS telemetry sentence extractor",
	Commands: []*urfavecli.Command{
		{
			Name:   "run",
			Usage:  "Speak the host protocol on stdin/stdout",
			Action: handleRun,
		},
		{
			Name:  "replay",
			Usage: "Run a captured byte stream through the extractor and print resulting events",
			Flags: []urfavecli.Flag{payloadFlag, inputFlag, plotPathFlag},
			Action: handleReplay,
		},
		{
			Name:  "monitor",
			Usage: "Speak the host protocol while rendering a live dashboard",
			Flags: []urfavecli.Flag{payloadFlag},
			Action: handleMonitor,
		},
	},
}

func handleRun(c *urfavecli.Context) error {
	return RunProtocol(os.Stdin, os.Stdout, nil)
}

func handleReplay(c *urfavecli.Context) error {
	payloadPath := c.String("payload")
	inputPath := c.String("input")
	if inputPath == "" {
		return urfavecli.Exit("replay: --input is required", 1)
	}

	n, err := Replay(payloadPath, inputPath, c.String("plotPath"), os.Stdout)
	if err != nil {
		return urfavecli.Exit(fmt.Sprintf("replay: %v", err), 1)
	}
	logging.Default().Infof("replay: processed %d bytes", n)
	return nil
}

func handleMonitor(c *urfavecli.Context) error {
	payloadPath := c.String("payload")
	app, err := monitor.NewApp(payloadPath)
	if err != nil {
		return urfavecli.Exit(fmt.Sprintf("monitor: %v", err), 1)
	}
	return app.Run(os.Stdin, os.Stdout)
}
