package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/flowrt"
	"github.com/stevecastle/raftflow/logger"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print a model's inputs, outputs and resolved settings",
		ArgsUsage: "[path-to-model]",
		Flags:     commonModelFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			m := modelSettings(cmd, appconfig.Get().Model)
			if cmd.NArg() > 0 && !cmd.IsSet("model") {
				m.Path = cmd.Args().First()
			}
			if m.Path == "" {
				return cli.Exit("error: --model is required", 1)
			}
			model, err := openModel(m, logger.FromContext(ctx))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to load model: %v", err), 1)
			}
			defer model.Close()

			printModel(os.Stdout, model)
			return nil
		},
	}
}

func printModel(w io.Writer, m *loadedModel) {
	fmt.Fprintf(w, "model:  %s\n", m.Path)
	fmt.Fprintln(w, "inputs:")
	printIO(w, m.Session.Inputs())
	fmt.Fprintln(w, "outputs:")
	printIO(w, m.Session.Outputs())
	fmt.Fprintf(w, "feeds:  %s, %s (%s)\n", m.InputNames[0], m.InputNames[1], m.InputOrder)
	out := m.OutputName
	if out == "" {
		out = "<only output>"
	}
	fmt.Fprintf(w, "flow:   %s (%s)\n", out, m.FlowOrder)
	fmt.Fprintf(w, "colour: %s\n", m.Decode.Order)
	if m.Decode.Width > 0 && m.Decode.Height > 0 {
		fmt.Fprintf(w, "resize: %dx%d %s\n", m.Decode.Width, m.Decode.Height, m.Decode.Interpolation)
	}
}

func printIO(w io.Writer, infos []flowrt.IOInfo) {
	for _, info := range infos {
		fmt.Fprintf(w, "  %-16s %-8s %v\n", info.Name, info.DataType, info.Shape)
	}
}
