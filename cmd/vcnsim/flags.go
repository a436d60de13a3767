package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kestrelhw/vcnsim/internal/logger"
	"github.com/kestrelhw/vcnsim/internal/mask"
	"github.com/kestrelhw/vcnsim/internal/npu"
	"github.com/kestrelhw/vcnsim/internal/scu"
	"github.com/kestrelhw/vcnsim/pkg/smf"
)

var (
	frameWidth     int64
	frameHeight    int64
	tileSize       int64
	wordsPerGroup  int64
	depthGroups    int64
	maxCredits     int64
	stallThreshold int64
	groupPeriod    int64
	jitter         int64
	bypass         bool

	dramLatency   int64
	dramBandwidth float64
	dramInflight  int64

	masksPath string
	layerName string
	modeName  string
	seed      int64
	maxCycles int64

	logLevel  string
	logFormat string
	debug     bool
)

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "frame-width",
			Aliases:     []string{"w"},
			Usage:       "frame width in pixels",
			Value:       1920,
			Destination: &frameWidth,
		},
		&cli.Int64Flag{
			Name:        "frame-height",
			Aliases:     []string{"h"},
			Usage:       "frame height in pixels",
			Value:       1080,
			Destination: &frameHeight,
		},
		&cli.Int64Flag{
			Name:        "tile",
			Usage:       "tile edge in pixels",
			Value:       16,
			Destination: &tileSize,
		},
		&cli.Int64Flag{
			Name:        "words-per-group",
			Aliases:     []string{"group-words"},
			Usage:       "words per handoff group",
			Value:       16,
			Destination: &wordsPerGroup,
		},
		&cli.Int64Flag{
			Name:        "depth-groups",
			Aliases:     []string{"depth"},
			Usage:       "handoff buffer depth in groups",
			Value:       8,
			Destination: &depthGroups,
		},
		&cli.Int64Flag{
			Name:        "max-credits",
			Usage:       "credit counter saturation limit",
			Value:       8,
			Destination: &maxCredits,
		},
		&cli.Int64Flag{
			Name:        "stall-threshold",
			Usage:       "consecutive stalled cycles before bypass",
			Value:       64,
			Destination: &stallThreshold,
		},
		&cli.Int64Flag{
			Name:        "group-period",
			Usage:       "producer transform latency per group in cycles",
			Value:       4,
			Destination: &groupPeriod,
		},
		&cli.Int64Flag{
			Name:        "jitter",
			Usage:       "producer latency jitter amplitude in cycles",
			Value:       2,
			Destination: &jitter,
		},
		&cli.BoolFlag{
			Name:        "bypass",
			Usage:       "force the degraded pass-through path",
			Destination: &bypass,
		},
		&cli.Int64Flag{
			Name:        "dram-latency",
			Usage:       "backing store request latency in cycles",
			Value:       800,
			Destination: &dramLatency,
		},
		&cli.Float64Flag{
			Name:        "dram-bandwidth",
			Usage:       "backing store bytes per cycle",
			Value:       1024,
			Destination: &dramBandwidth,
		},
		&cli.Int64Flag{
			Name:        "dram-inflight",
			Usage:       "backing store outstanding request limit",
			Value:       4,
			Destination: &dramInflight,
		},
		&cli.StringFlag{
			Name:        "masks",
			Usage:       "path to .smf mask file (generated on the fly when empty)",
			Destination: &masksPath,
		},
		&cli.StringFlag{
			Name:        "layer",
			Usage:       "mask layer driving the transform producer",
			Value:       "RFConv0",
			Destination: &layerName,
		},
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "accumulate mode (conv, deconv)",
			Value:       "conv",
			Destination: &modeName,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for tile synthesis, offsets and reference data",
			Value:       42,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "max-cycles",
			Usage:       "cycle budget (0 = unlimited)",
			Value:       50_000_000,
			Destination: &maxCycles,
		},
	}
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
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	default:
		return logger.Pretty(os.Stderr, level)
	}
}

func buildConfig() (npu.Config, error) {
	cfg := npu.Config{
		FrameWidth:     int(frameWidth),
		FrameHeight:    int(frameHeight),
		TileSize:       int(tileSize),
		RefBase:        0x1000_0000,
		WordsPerGroup:  int(wordsPerGroup),
		DepthGroups:    int(depthGroups),
		MaxCredits:     int(maxCredits),
		StallThreshold: int(stallThreshold),
		GroupPeriod:    int(groupPeriod),
		Jitter:         int(jitter),
		Bypass:         bypass,
		Seed:           seed,
	}
	if err := cfg.Validate(); err != nil {
		return npu.Config{}, err
	}
	return cfg, nil
}

func parseMode() (scu.Mode, error) {
	switch modeName {
	case "conv":
		return scu.ModeConv, nil
	case "deconv":
		return scu.ModeDeconv, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want conv or deconv)", modeName)
	}
}

// loadLayer resolves the producer's mask layer: from the given file when set,
// otherwise from a freshly generated default set.
func loadLayer() (smf.Layer, error) {
	if masksPath != "" {
		f, err := smf.Open(masksPath)
		if err != nil {
			return smf.Layer{}, err
		}
		defer func() { _ = f.Close() }()
		return f.Layer(layerName)
	}
	for _, lay := range mask.GenerateAll(mask.DefaultLayers(), seed) {
		if lay.Name == layerName {
			return lay, nil
		}
	}
	return smf.Layer{}, fmt.Errorf("layer %q not in the default set", layerName)
}

// layerEntries converts a mask layer to engine entries with the span the
// selected mode exposes.
func layerEntries(lay smf.Layer, cfg npu.Config, mode scu.Mode) []scu.Entry {
	srcSpan := cfg.WordsPerGroup
	dstSpan := cfg.WordsPerGroup
	if mode == scu.ModeDeconv {
		srcSpan = 2 * cfg.WordsPerGroup
		dstSpan = 3 * cfg.WordsPerGroup
	}
	return mask.Entries(lay, srcSpan, dstSpan)
}
