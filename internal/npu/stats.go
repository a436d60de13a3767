package npu

// Stats is a read-only snapshot of the pipeline's monitoring counters.
type Stats struct {
	Cycles         uint64 `json:"cycles"`
	GroupsProduced uint64 `json:"groups_produced"`
	GroupsConsumed uint64 `json:"groups_consumed"`
	OutputSamples  uint64 `json:"output_samples"`
	BypassWords    uint64 `json:"bypass_words"`

	Occupancy    int    `json:"occupancy"`
	MaxOccupancy int    `json:"max_occupancy"`
	OccupancySum uint64 `json:"-"`

	Credits        int    `json:"credits"`
	StallCycles    uint64 `json:"stall_cycles"`
	StallCredit    uint64 `json:"stall_credit"`
	StallReference uint64 `json:"stall_reference"`
	BypassEntries  uint64 `json:"bypass_entries"`

	Overflows  uint64 `json:"overflows"`
	Underflows uint64 `json:"underflows"`

	PrefetchRequests uint64 `json:"prefetch_requests"`
	StoreRequests    uint64 `json:"store_requests"`
	StoreBytes       uint64 `json:"store_bytes"`

	MACs   uint64 `json:"macs"`
	Digest uint64 `json:"output_digest"`

	State string `json:"state"`
	Busy  bool   `json:"busy"`
	Error bool   `json:"error"`
}

// AvgOccupancy returns the mean buffer occupancy over the run.
func (s Stats) AvgOccupancy() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.OccupancySum) / float64(s.Cycles)
}
