package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kestrelhw/vcnsim/internal/dma"
	"github.com/kestrelhw/vcnsim/internal/logger"
	"github.com/kestrelhw/vcnsim/internal/npu"
	"github.com/kestrelhw/vcnsim/internal/report"
	"github.com/kestrelhw/vcnsim/pkg/smf"
)

func runCmd() *cli.Command {
	var reportPath string

	return &cli.Command{
		Name:  "run",
		Usage: "Simulate one frame through the dataflow pipeline",
		Flags: append(append(pipelineFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "report",
				Aliases:     []string{"o"},
				Usage:       "write the run summary as JSON to this path",
				Destination: &reportPath,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := newLogger()
			ctx = logger.WithContext(ctx, log)
			applyRunConfig(cmd, loadFileConfig())

			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			mode, err := parseMode()
			if err != nil {
				return err
			}
			lay, err := loadLayer()
			if err != nil {
				return err
			}

			sys, err := buildSystem(cfg, lay, log)
			if err != nil {
				return err
			}

			log.Info("starting frame",
				"frame", fmt.Sprintf("%dx%d", cfg.FrameWidth, cfg.FrameHeight),
				"groups", cfg.GroupsPerFrame(),
				"layer", lay.Name,
				"mode", mode.String(),
				"nonzeros", len(lay.Coords),
				"seed", cfg.Seed)

			started := time.Now()
			stats, err := sys.Run(ctx, uint64(maxCycles))
			elapsed := time.Since(started)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("run failed", "err", err, "cycles", stats.Cycles, "state", stats.State)
				return err
			}

			sum := report.Build(cfg, stats, started, elapsed)
			sum.MaskLayers = []report.LayerMACs{{
				Name:     lay.Name,
				Nonzeros: len(lay.Coords),
				MACs:     stats.MACs,
				Fraction: lay.Fraction,
			}}
			printSummary(sum)

			if reportPath != "" {
				if err := sum.WriteFile(reportPath); err != nil {
					return err
				}
				log.Info("report written", "path", reportPath)
			}
			return nil
		},
	}
}

// buildSystem wires the producer, backing store, and pipeline for one run.
func buildSystem(cfg npu.Config, lay smf.Layer, log logger.Logger) (*npu.System, error) {
	mode, err := parseMode()
	if err != nil {
		return nil, err
	}
	entries := layerEntries(lay, cfg, mode)
	if len(entries) == 0 {
		return nil, fmt.Errorf("layer %s carries no entries", lay.Name)
	}
	store := dma.NewEngine(int(dramLatency), dramBandwidth, cfg.BytesPerSample, int(dramInflight), cfg.Seed)
	prod := npu.NewTransformProducer(&cfg, entries, mode)
	return npu.NewSystem(cfg, prod, store, log)
}

func printSummary(s report.Summary) {
	fmt.Printf("cycles:           %d (%s wall)\n", s.Cycles, s.Runtime)
	fmt.Printf("groups:           %d produced / %d consumed of %d\n",
		s.GroupsProduced, s.GroupsConsumed, s.Frame.Groups)
	fmt.Printf("output samples:   %d (%d via bypass)\n", s.OutputSamples, s.BypassWords)
	fmt.Printf("buffer occupancy: max %d / %d, avg %.1f\n",
		s.Buffer.MaxOccupancy, s.Buffer.Capacity, s.Buffer.AvgOccupancy)
	fmt.Printf("stalls:           %d producer (%d credit), %d reference\n",
		s.Stalls.Producer, s.Stalls.Credit, s.Stalls.Reference)
	fmt.Printf("bypass entries:   %d\n", s.BypassEntries)
	fmt.Printf("store traffic:    %d requests, %d bytes\n", s.Store.Requests, s.Store.Bytes)
	fmt.Printf("macs:             %d (%.2f/cycle)\n", s.MACs, s.MACsPerCycle)
	fmt.Printf("output digest:    %s\n", s.OutputDigest)
	fmt.Printf("final state:      %s\n", s.FinalState)
}
