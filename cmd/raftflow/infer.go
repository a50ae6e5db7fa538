package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/logger"
)

func inferCmd() *cli.Command {
	return &cli.Command{
		Name:      "infer",
		Usage:     "Estimate flow between two frames and save it as a KITTI png",
		ArgsUsage: "<path-to-image1> <path-to-image2> <path-to-save>",
		Flags:     append(commonModelFlags(), ledgerFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 3 {
				return cli.Exit("error: expected <path-to-image1> <path-to-image2> <path-to-save>", 1)
			}
			img1, img2, save := cmd.Args().Get(0), cmd.Args().Get(1), cmd.Args().Get(2)

			log := logger.FromContext(ctx)
			cfg := appconfig.Get()
			m := modelSettings(cmd, cfg.Model)
			if m.Path == "" {
				return cli.Exit("error: --model is required (or set model.path in the config)", 1)
			}

			model, err := openModel(m, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to load model: %v", err), 1)
			}
			defer model.Close()

			runs, err := openLedger(ledgerSetting(cmd, cfg))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to open run ledger: %v", err), 1)
			}
			var rec runRecorder
			if runs != nil {
				defer runs.Close()
				rec = runs
			}

			res, err := model.EstimateFiles(ctx, img1, img2, save)
			recordRun(ctx, rec, log, m.Path, img1, img2, save, res, err)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: inference failed: %v", err), 1)
			}
			fmt.Printf("%s\t%dx%d\t%s\n", res.Output, res.Width, res.Height, res.Elapsed)
			return nil
		},
	}
}
