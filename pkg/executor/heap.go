package executor

import "sync/atomic"

// taskHeap is a container/heap.Interface ordering tasks by ascending
// PriorityKey (smaller runs first). A monotonic sequence number breaks
// ties in submission order. container/heap itself makes no ordering
// guarantee among equal keys, but a stable tie-break costs nothing and
// makes tests deterministic.
type taskHeap struct {
	items []*Task
	seq   []int64
}

func (h *taskHeap) Len() int { return len(h.items) }

func (h *taskHeap) Less(i, j int) bool {
	if h.items[i].PriorityKey() != h.items[j].PriorityKey() {
		return h.items[i].PriorityKey() < h.items[j].PriorityKey()
	}
	return h.seq[i] < h.seq[j]
}

func (h *taskHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.seq[i], h.seq[j] = h.seq[j], h.seq[i]
}

var heapSeq atomic.Int64

func (h *taskHeap) Push(x any) {
	h.items = append(h.items, x.(*Task))
	h.seq = append(h.seq, heapSeq.Add(1))
}

func (h *taskHeap) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	h.seq = h.seq[:n-1]
	return item
}
