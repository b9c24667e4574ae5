package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"github.com/webitel/rfc-communicator/config"
)

const (
	ServiceName      = "rfc-communicator"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// Run parses os.Args and dispatches to the "serve" or "monitor" command.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Transport-agnostic remote function call runtime",
		Commands: []*cli.Command{
			serveCmd(false),
			serveCmd(true),
		},
	}

	return app.Run(os.Args)
}

// serveCmd builds the "serve" command, or the "monitor" command when
// withMonitor is true: the same daemon, just forced into
// cfg.Monitor.Enabled so an attended operator gets the termui dashboard
// without hand-editing the config file.
func serveCmd(withMonitor bool) *cli.Command {
	name, usage := "serve", "Run the communicator daemon, accepting every enabled transport"
	aliases := []string{"s"}
	if withMonitor {
		name, usage = "monitor", "Run the communicator daemon with the live connector dashboard attached"
		aliases = []string{"m"}
	}

	return &cli.Command{
		Name:    name,
		Aliases: aliases,
		Usage:   usage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
			cfg, err := config.Load(c.String("config_file"), flags)
			if err != nil {
				return err
			}
			if withMonitor {
				cfg.Monitor.Enabled = true
			}

			app := NewApp(cfg)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down...")
			return app.Stop(context.Background())
		},
	}
}
