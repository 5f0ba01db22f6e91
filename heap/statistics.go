package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/kernelkit/memutils"
)

// AddStatistics sums this heap's allocation statistics into the statistics currently present in the
// provided memutils.Statistics object.
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	h.walk(func(offset int, block blockHeader) {
		stats.BlockCount++
		stats.BlockBytes += block.size
		if !block.free {
			stats.AllocationCount++
			stats.AllocationBytes += block.size
		}
	})
}

// AddDetailedStatistics sums this heap's allocation statistics into the statistics currently present
// in the provided memutils.DetailedStatistics object.
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	h.addDetailedStatistics(stats)
}

func (h *Heap) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.walk(func(offset int, block blockHeader) {
		stats.BlockCount++
		stats.BlockBytes += block.size
		if block.free {
			stats.AddUnusedRange(block.size)
			return
		}

		requested := block.size
		if handle, ok := h.blockOwner.Get(offset); ok {
			if record, ok := h.handleKey.Get(handle); ok {
				requested = record.requested
			}
		}
		stats.AddAllocation(block.size, requested)
	})
}

// BuildStatsString returns a json document describing the heap. When detailed is true, the document
// also lists every block in arena order.
func (h *Heap) BuildStatsString(detailed bool) string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.addDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("TotalBytes").Int(h.Size())
	obj.Name("HeaderBytes").Int(h.BlockCount() * HeaderSize)
	obj.Name("UsedBytes").Int(stats.AllocationBytes)

	statsObj := obj.Name("Statistics").Object()
	stats.PrintJson(&statsObj)
	statsObj.End()

	if detailed {
		blocks := obj.Name("Blocks").Array()
		h.walk(func(offset int, block blockHeader) {
			blockObj := blocks.Object()
			blockObj.Name("Offset").Int(offset)
			blockObj.Name("Size").Int(block.size)
			blockObj.Name("Free").Bool(block.free)
			if !block.free {
				handle, _ := h.blockOwner.Get(offset)
				blockObj.Name("Handle").Int(int(handle))
			}
			blockObj.End()
		})
		blocks.End()
	}

	obj.End()
	return string(writer.Bytes())
}
