// Package report assembles a run's final metrics and writes them as JSON.
package report

import (
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kestrelhw/vcnsim/internal/npu"
)

// Summary is the exported result of one simulation run.
type Summary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Runtime   string    `json:"runtime"`

	Frame struct {
		Width  int `json:"width"`
		Height int `json:"height"`
		Tile   int `json:"tile"`
		Groups int `json:"groups"`
	} `json:"frame"`

	Cycles         uint64  `json:"cycles"`
	GroupsProduced uint64  `json:"groups_produced"`
	GroupsConsumed uint64  `json:"groups_consumed"`
	OutputSamples  uint64  `json:"output_samples"`
	BypassWords    uint64  `json:"bypass_words"`
	OutputDigest   string  `json:"output_digest"`
	MACs           uint64  `json:"macs"`
	MACsPerCycle   float64 `json:"macs_per_cycle"`

	Buffer struct {
		Capacity     int     `json:"capacity"`
		MaxOccupancy int     `json:"max_occupancy"`
		AvgOccupancy float64 `json:"avg_occupancy"`
		Overflows    uint64  `json:"overflows"`
		Underflows   uint64  `json:"underflows"`
	} `json:"buffer"`

	Stalls struct {
		Producer  uint64 `json:"producer"`
		Credit    uint64 `json:"credit"`
		Reference uint64 `json:"reference"`
	} `json:"stalls"`

	BypassEntries uint64 `json:"bypass_entries"`

	Store struct {
		Requests uint64 `json:"requests"`
		Bytes    uint64 `json:"bytes"`
	} `json:"store"`

	MaskLayers []LayerMACs `json:"mask_layers,omitempty"`
	FinalState string      `json:"final_state"`
	Error      bool        `json:"error"`
}

// LayerMACs is one layer's contribution to the MAC estimate.
type LayerMACs struct {
	Name     string  `json:"name"`
	Nonzeros int     `json:"nonzeros"`
	MACs     uint64  `json:"macs"`
	Fraction float32 `json:"fraction"`
}

// Build assembles a summary from a run's stats and configuration.
func Build(cfg npu.Config, stats npu.Stats, started time.Time, runtime time.Duration) Summary {
	var s Summary
	s.RunID = uuid.NewString()
	s.StartedAt = started.UTC()
	s.Runtime = runtime.Round(time.Millisecond).String()

	s.Frame.Width = cfg.FrameWidth
	s.Frame.Height = cfg.FrameHeight
	s.Frame.Tile = cfg.TileSize
	s.Frame.Groups = cfg.GroupsPerFrame()

	s.Cycles = stats.Cycles
	s.GroupsProduced = stats.GroupsProduced
	s.GroupsConsumed = stats.GroupsConsumed
	s.OutputSamples = stats.OutputSamples
	s.BypassWords = stats.BypassWords
	s.OutputDigest = fmt.Sprintf("%016x", stats.Digest)
	s.MACs = stats.MACs
	if stats.Cycles > 0 {
		s.MACsPerCycle = float64(stats.MACs) / float64(stats.Cycles)
	}

	s.Buffer.Capacity = cfg.WordsPerGroup * cfg.DepthGroups
	s.Buffer.MaxOccupancy = stats.MaxOccupancy
	s.Buffer.AvgOccupancy = stats.AvgOccupancy()
	s.Buffer.Overflows = stats.Overflows
	s.Buffer.Underflows = stats.Underflows

	s.Stalls.Producer = stats.StallCycles
	s.Stalls.Credit = stats.StallCredit
	s.Stalls.Reference = stats.StallReference
	s.BypassEntries = stats.BypassEntries

	s.Store.Requests = stats.StoreRequests
	s.Store.Bytes = stats.StoreBytes

	s.FinalState = stats.State
	s.Error = stats.Error
	return s
}

// WriteFile marshals the summary with indentation and writes it to path.
func (s Summary) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
