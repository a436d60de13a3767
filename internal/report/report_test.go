package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kestrelhw/vcnsim/internal/npu"
)

func TestBuildSummary(t *testing.T) {
	cfg := npu.Config{
		FrameWidth:    1920,
		FrameHeight:   1080,
		TileSize:      16,
		WordsPerGroup: 16,
		DepthGroups:   8,
		MaxCredits:    8,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	stats := npu.Stats{
		Cycles:         1000,
		GroupsProduced: 40,
		GroupsConsumed: 40,
		OutputSamples:  640,
		MaxOccupancy:   96,
		OccupancySum:   32000,
		StallCycles:    30,
		StallCredit:    12,
		StallReference: 7,
		MACs:           500000,
		Digest:         0xdeadbeefcafef00d,
		State:          "DONE",
	}
	s := Build(cfg, stats, time.Now(), 250*time.Millisecond)

	if s.RunID == "" {
		t.Fatal("run id empty")
	}
	if s.Frame.Groups != 120*68 {
		t.Fatalf("groups per frame: got %d want %d", s.Frame.Groups, 120*68)
	}
	if s.Buffer.Capacity != 128 {
		t.Fatalf("capacity: got %d want 128", s.Buffer.Capacity)
	}
	if s.Buffer.AvgOccupancy != 32 {
		t.Fatalf("avg occupancy: got %v want 32", s.Buffer.AvgOccupancy)
	}
	if s.MACsPerCycle != 500 {
		t.Fatalf("macs/cycle: got %v want 500", s.MACsPerCycle)
	}
	if s.OutputDigest != "deadbeefcafef00d" {
		t.Fatalf("digest: got %q", s.OutputDigest)
	}
	if s.Stalls.Producer != 30 || s.Stalls.Credit != 12 || s.Stalls.Reference != 7 {
		t.Fatalf("stall breakdown: %+v", s.Stalls)
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	cfg := npu.Config{FrameWidth: 64, FrameHeight: 64, TileSize: 16, WordsPerGroup: 16, DepthGroups: 4, MaxCredits: 4}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	s := Build(cfg, npu.Stats{Cycles: 10, State: "DONE"}, time.Now(), time.Millisecond)
	s.MaskLayers = []LayerMACs{{Name: "RFConv0", Nonzeros: 100, MACs: 1000, Fraction: 0.375}}

	path := filepath.Join(t.TempDir(), "report.json")
	if err := s.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatal("report does not end with newline")
	}
	var back Summary
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.RunID != s.RunID || back.FinalState != "DONE" {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if len(back.MaskLayers) != 1 || back.MaskLayers[0].Name != "RFConv0" {
		t.Fatalf("mask layers lost: %+v", back.MaskLayers)
	}
}
