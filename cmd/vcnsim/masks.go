package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kestrelhw/vcnsim/internal/mask"
	"github.com/kestrelhw/vcnsim/internal/scu"
)

func masksCmd() *cli.Command {
	return &cli.Command{
		Name:  "masks",
		Usage: "Generate and inspect sparsity mask files",
		Commands: []*cli.Command{
			masksGenerateCmd(),
			masksInspectCmd(),
		},
	}
}

func masksGenerateCmd() *cli.Command {
	var (
		outPath string
		genSeed int64
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate the default residual-filter mask set",
		Flags: append(loggingFlags(),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .smf path",
				Value:       "masks.smf",
				Destination: &outPath,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "generation seed",
				Value:       42,
				Destination: &genSeed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := newLogger()

			layers := mask.GenerateAll(mask.DefaultLayers(), genSeed)
			if err := mask.Save(outPath, layers); err != nil {
				return err
			}
			for _, lay := range layers {
				log.Info("layer generated", "name", lay.Name,
					"shape", lay.Shape, "nonzeros", len(lay.Coords),
					"fraction", lay.Fraction)
			}
			log.Info("mask file written", "path", outPath, "layers", len(layers))
			return nil
		},
	}
}

func masksInspectCmd() *cli.Command {
	var (
		filePath    string
		rows        int64
		cols        int64
		multipliers int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print layer statistics for a mask file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .smf file",
				Required:    true,
				Destination: &filePath,
			},
			&cli.Int64Flag{
				Name:        "rows",
				Usage:       "accumulate grid rows",
				Value:       4,
				Destination: &rows,
			},
			&cli.Int64Flag{
				Name:        "cols",
				Usage:       "accumulate grid columns",
				Value:       4,
				Destination: &cols,
			},
			&cli.Int64Flag{
				Name:        "multipliers",
				Usage:       "parallel multipliers per accumulate unit",
				Value:       4,
				Destination: &multipliers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			layers, err := mask.Load(filePath)
			if err != nil {
				return err
			}
			byLayer, total := mask.EstimateMACs(layers, 1080, 1920)
			grid := scu.Grid{Rows: int(rows), Cols: int(cols), Multipliers: int(multipliers)}

			for _, lay := range layers {
				dense := uint64(lay.Shape[0]) * uint64(lay.Shape[1]) * uint64(lay.Shape[2]) * uint64(lay.Shape[3])
				counts := mask.SCUCounts(lay, grid.Rows, grid.Cols)
				// analytic pass latency for one 16x16 tile (64 output patches)
				passCycles := grid.PassCycles(scu.Scale(counts, 64))
				fmt.Printf("%-12s shape=%dx%dx%dx%d nonzeros=%d/%d (%.1f%%) macs=%d tile-pass=%dcyc\n",
					lay.Name, lay.Shape[0], lay.Shape[1], lay.Shape[2], lay.Shape[3],
					len(lay.Coords), dense,
					100*float64(len(lay.Coords))/float64(dense),
					byLayer[lay.Name], passCycles)
			}
			fmt.Printf("total macs per 1080p frame: %d\n", total)
			return nil
		},
	}
}
