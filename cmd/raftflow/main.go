package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/logger"
)

func main() {
	app := &cli.Command{
		Name:   "raftflow",
		Usage:  "Two-frame optical flow estimation with ONNX models",
		Flags:  globalFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			inferCmd(),
			shellCmd(),
			inspectCmd(),
			serveCmd(),
			historyCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup loads the config and installs the logger every command reads from
// its context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if !cmd.IsSet("log-level") && cfg.Log.Level != "" {
		logLevel = cfg.Log.Level
	}
	if !cmd.IsSet("log-format") && cfg.Log.Format != "" {
		logFormat = cfg.Log.Format
	}
	log := logger.Build(logFormat, logger.ParseLevel(logLevel), os.Stderr)
	return logger.WithContext(ctx, log), nil
}

func loadConfig(path string) (appconfig.Config, error) {
	if path != "" {
		return appconfig.LoadFile(path)
	}
	cfg, _, err := appconfig.Load()
	return cfg, err
}
