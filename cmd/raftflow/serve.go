package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/logger"
	"github.com/stevecastle/raftflow/server"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve flow estimation over HTTP",
		Flags: append(append(commonModelFlags(), ledgerFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := appconfig.Get()
			if !cmd.IsSet("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.IsSet("read-timeout") && cfg.Server.ReadTimeout != "" {
				d, err := time.ParseDuration(cfg.Server.ReadTimeout)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: invalid server.readTimeout %q: %v", cfg.Server.ReadTimeout, err), 1)
				}
				readTimeout = d
			}

			m := modelSettings(cmd, cfg.Model)
			if m.Path == "" {
				return cli.Exit("error: --model is required (or set model.path in the config)", 1)
			}
			model, err := openModel(m, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to load model: %v", err), 1)
			}
			defer model.Close()

			srv := &server.Server{
				Estimator: model.Estimator,
				Model:     model.Session,
				ModelPath: model.Path,
				Log:       log,
			}
			runs, err := openLedger(ledgerSetting(cmd, cfg))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to open run ledger: %v", err), 1)
			}
			if runs != nil {
				defer runs.Close()
				srv.Runs = runs
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			srv.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
