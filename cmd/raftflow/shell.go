package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/flowrt"
	"github.com/stevecastle/raftflow/logger"
)

const shellUsage = `Usage:
  help
  inference <path-to-image1> <path-to-image2> <path-to-save>
  load <path-to-model> [cuda-device-num]
  quit
`

// shell is the line-oriented prompt. Problems with a single command are
// logged and the prompt carries on.
type shell struct {
	out  io.Writer
	log  logger.Logger
	base appconfig.ModelConfig
	open func(m appconfig.ModelConfig) (flowModel, error)
	runs runRecorder

	model     flowModel
	modelPath string
}

func shellCmd() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive prompt to load a model and run inference on frame pairs",
		Flags: append(commonModelFlags(), ledgerFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := appconfig.Get()

			sh := &shell{
				out:  os.Stdout,
				log:  log,
				base: modelSettings(cmd, cfg.Model),
				open: func(m appconfig.ModelConfig) (flowModel, error) {
					lm, err := openModel(m, log)
					if err != nil {
						return nil, err
					}
					return lm, nil
				},
			}
			runs, err := openLedger(ledgerSetting(cmd, cfg))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: failed to open run ledger: %v", err), 1)
			}
			if runs != nil {
				defer runs.Close()
				sh.runs = runs
			}
			if sh.base.Path != "" {
				sh.loadModel(sh.base)
			}
			return sh.run(ctx, os.Stdin)
		},
	}
}

// run reads commands from in until quit, EOF or cancellation. The loaded
// model is released on return.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	defer s.closeModel()
	fmt.Fprint(s.out, shellUsage)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !sc.Scan() {
			return sc.Err()
		}
		if s.exec(ctx, sc.Text()) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "help":
		fmt.Fprint(s.out, shellUsage)
	case "load":
		s.load(fields[1:])
	case "inference":
		s.inference(ctx, fields[1:])
	case "quit", "exit":
		return true
	default:
		s.log.Warn("unknown operation", "line", strings.TrimSpace(line))
	}
	return false
}

func (s *shell) load(args []string) {
	if len(args) < 1 {
		s.log.Warn("expected a model path, skipping")
		return
	}
	m := s.base
	m.Path = args[0]
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		switch {
		case err != nil:
			s.log.Warn("cuda device must be a number, skipping", "value", args[1])
			return
		case n < 0:
			s.log.Warn("negative cuda device, running on cpu", "device", n)
			m.UseCUDA, m.CUDADevice = false, -1
		default:
			m.UseCUDA, m.CUDADevice = true, n
		}
	}
	s.loadModel(m)
}

func (s *shell) loadModel(m appconfig.ModelConfig) {
	if !flowrt.IsModelPath(m.Path) {
		s.log.Error("only onnx models are supported", "path", m.Path)
		return
	}
	if _, err := os.Stat(m.Path); err != nil {
		s.log.Error("model does not exist, skipping", "path", m.Path)
		return
	}
	model, err := s.open(m)
	if err != nil {
		s.log.Error("failed to load model", "path", m.Path, "error", err)
		return
	}
	if s.model != nil {
		s.log.Info("replacing loaded model", "previous", s.modelPath)
		s.closeModel()
	}
	s.model, s.modelPath = model, m.Path
	s.log.Info("model ready", "path", m.Path, "cuda_device", m.Device())
}

func (s *shell) inference(ctx context.Context, args []string) {
	if len(args) < 3 {
		s.log.Warn("expected 3 arguments: <path-to-image1> <path-to-image2> <path-to-save>")
		return
	}
	img1, img2, save := args[0], args[1], args[2]
	for i, p := range []string{img1, img2} {
		if _, err := os.Stat(p); err != nil {
			s.log.Error(fmt.Sprintf("image%d does not exist, skipping", i+1), "path", p)
			return
		}
	}
	if s.model == nil {
		s.log.Warn("no model loaded, skipping")
		return
	}
	if !strings.EqualFold(filepath.Ext(save), ".png") {
		s.log.Warn("only png output is supported, skipping", "path", save)
		return
	}

	res, err := s.model.EstimateFiles(ctx, img1, img2, save)
	recordRun(ctx, s.runs, s.log, s.modelPath, img1, img2, save, res, err)
	if err != nil {
		s.log.Error("inference failed", "error", err)
		return
	}
	fmt.Fprintf(s.out, "saved %s (%dx%d) in %s\n", res.Output, res.Width, res.Height, res.Elapsed)
}

func (s *shell) closeModel() {
	if s.model == nil {
		return
	}
	if err := s.model.Close(); err != nil {
		s.log.Warn("failed to release model", "path", s.modelPath, "error", err)
	}
	s.model, s.modelPath = nil, ""
}
