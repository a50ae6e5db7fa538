package main

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/stevecastle/raftflow/appconfig"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	modelPath     string
	ortLib        string
	cudaDevice    int
	inputNames    string
	outputName    string
	inputLayout   string
	flowLayout    string
	channelOrder  string
	resizeWidth   int
	resizeHeight  int
	interpolation string
	ledgerPath    string
)

func globalFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to a JSON or YAML config file (default: the data directory config.json)",
			Destination: &configPath,
		},
	}, loggingFlags()...)
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .onnx flow model",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "ort-lib",
			Usage:       "path to the onnxruntime shared library",
			Destination: &ortLib,
		},
		&cli.IntFlag{
			Name:        "cuda-device",
			Aliases:     []string{"cuda"},
			Usage:       "CUDA device number (-1 = CPU)",
			Value:       -1,
			Destination: &cudaDevice,
		},
		&cli.StringFlag{
			Name:        "input-names",
			Usage:       "comma-separated graph inputs for the two frames",
			Destination: &inputNames,
		},
		&cli.StringFlag{
			Name:        "output-name",
			Usage:       "graph output holding the flow (default: the only output)",
			Destination: &outputName,
		},
		&cli.StringFlag{
			Name:        "input-layout",
			Usage:       "image tensor layout, e.g. NCHW or NHWC",
			Destination: &inputLayout,
		},
		&cli.StringFlag{
			Name:        "flow-layout",
			Usage:       "flow tensor layout, e.g. NCHW or NHWC",
			Destination: &flowLayout,
		},
		&cli.StringFlag{
			Name:        "channel-order",
			Usage:       "colour channel order fed to the model (BGR, RGB)",
			Destination: &channelOrder,
		},
		&cli.IntFlag{
			Name:        "width",
			Usage:       "resize frames to this width before inference (0 = native)",
			Destination: &resizeWidth,
		},
		&cli.IntFlag{
			Name:        "height",
			Usage:       "resize frames to this height before inference (0 = native)",
			Destination: &resizeHeight,
		},
		&cli.StringFlag{
			Name:        "interpolation",
			Usage:       "resize filter (nearest, bilinear, bicubic, catmullrom)",
			Destination: &interpolation,
		},
	}
}

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ledger",
			Usage:       "run history database (\"off\" disables recording)",
			Destination: &ledgerPath,
		},
	}
}

// modelSettings returns the model section of cfg with every flag the user
// set on cmd applied on top.
func modelSettings(cmd *cli.Command, cfg appconfig.ModelConfig) appconfig.ModelConfig {
	m := cfg
	if cmd.IsSet("model") {
		m.Path = modelPath
	}
	if cmd.IsSet("ort-lib") {
		m.ORTSharedLibraryPath = ortLib
	}
	if cmd.IsSet("cuda-device") {
		m.UseCUDA = cudaDevice >= 0
		m.CUDADevice = cudaDevice
	}
	if cmd.IsSet("input-names") {
		m.InputNames = splitNames(inputNames)
	}
	if cmd.IsSet("output-name") {
		m.OutputName = outputName
	}
	if cmd.IsSet("input-layout") {
		m.InputLayout = inputLayout
	}
	if cmd.IsSet("flow-layout") {
		m.FlowLayout = flowLayout
	}
	if cmd.IsSet("channel-order") {
		m.ChannelOrder = channelOrder
	}
	if cmd.IsSet("width") {
		m.Width = resizeWidth
	}
	if cmd.IsSet("height") {
		m.Height = resizeHeight
	}
	if cmd.IsSet("interpolation") {
		m.Interpolation = interpolation
	}
	return m
}

// ledgerSetting returns the --ledger flag when set, else the config value.
func ledgerSetting(cmd *cli.Command, cfg appconfig.Config) string {
	if cmd.IsSet("ledger") {
		return ledgerPath
	}
	return cfg.LedgerPath
}

func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
