package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/ledger"
)

func historyCmd() *cli.Command {
	var (
		limit  int
		asJSON bool
	)

	return &cli.Command{
		Name:  "history",
		Usage: "List recent inference runs",
		Flags: append(ledgerFlags(),
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of runs to show",
				Value:       ledger.DefaultLimit,
				Destination: &limit,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print runs as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := ledgerSetting(cmd, appconfig.Get())
			if path == "" || path == appconfig.LedgerDisabled {
				return cli.Exit("error: run recording is disabled", 1)
			}
			if _, err := os.Stat(path); err != nil {
				return cli.Exit(fmt.Sprintf("error: no run history at %s", path), 1)
			}
			runs, err := ledger.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to open run ledger: %v", err), 1)
			}
			defer runs.Close()

			recent, err := runs.Recent(ctx, limit)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to list runs: %v", err), 1)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recent)
			}
			return printRuns(os.Stdout, recent)
		},
	}
}

func printRuns(w io.Writer, runs []ledger.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSTATUS\tSIZE\tELAPSED\tOUTPUT\tERROR")
	for _, r := range runs {
		size := "-"
		if r.Width > 0 && r.Height > 0 {
			size = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}
		out := r.Output
		if out == "" {
			out = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Status, size,
			time.Duration(r.ElapsedMS)*time.Millisecond, out, r.Error)
	}
	return tw.Flush()
}
