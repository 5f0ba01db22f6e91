package memutils

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics summarizes the blocks of an arena. BlockBytes and AllocationBytes count payload bytes only,
// block headers are not included.
type Statistics struct {
	BlockCount      int
	AllocationCount int
	BlockBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.AllocationCount = 0
	s.BlockBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.BlockBytes += other.BlockBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with the shape of the free and allocated ranges. RequestedBytes
// is the sum of the sizes callers asked for; since a block is never split, AllocationBytes - RequestedBytes
// is the space lost inside allocated blocks.
type DetailedStatistics struct {
	Statistics
	RequestedBytes     int
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.RequestedBytes = 0
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size, requested int) {
	s.AllocationCount++
	s.AllocationBytes += size
	s.RequestedBytes += requested

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

// WastedBytes is the number of payload bytes held by allocated blocks beyond what was requested
func (s *DetailedStatistics) WastedBytes() int {
	return s.AllocationBytes - s.RequestedBytes
}

// PrintJson writes the statistics as fields of an already-open json object
func (s *Statistics) PrintJson(json *jwriter.ObjectState) {
	json.Name("BlockCount").Int(s.BlockCount)
	json.Name("BlockBytes").Int(s.BlockBytes)
	json.Name("AllocationCount").Int(s.AllocationCount)
	json.Name("AllocationBytes").Int(s.AllocationBytes)
}

// PrintJson writes the detailed statistics as fields of an already-open json object. Min values are
// omitted when no range of that kind exists.
func (s *DetailedStatistics) PrintJson(json *jwriter.ObjectState) {
	s.Statistics.PrintJson(json)
	json.Name("RequestedBytes").Int(s.RequestedBytes)
	json.Name("WastedBytes").Int(s.WastedBytes())
	json.Name("UnusedRangeCount").Int(s.UnusedRangeCount)

	if s.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(s.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(s.AllocationSizeMax)
	}

	if s.UnusedRangeCount > 0 {
		json.Name("UnusedRangeSizeMin").Int(s.UnusedRangeSizeMin)
		json.Name("UnusedRangeSizeMax").Int(s.UnusedRangeSizeMax)
	}
}
