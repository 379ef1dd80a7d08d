package queue

import (
	"container/heap"

	"docflow/internal/transaction"
)

// pendingHeap orders pending entries by priority, complexity, and age.
type pendingHeap []*entry

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	return transaction.SortKeyLess(h[i].tx, h[j].tx)
}

func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *pendingHeap) Push(x any) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

func (h *pendingHeap) push(e *entry) {
	heap.Push(h, e)
}

func (h *pendingHeap) pop() *entry {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*entry)
}

func (h *pendingHeap) remove(e *entry) {
	if e.heapIndex < 0 || e.heapIndex >= h.Len() {
		return
	}
	heap.Remove(h, e.heapIndex)
}
