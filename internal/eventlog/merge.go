package eventlog

import (
	"cmp"
	"container/heap"
	"iter"
)

// Merged is one event of the global sequence together with the device that
// produced it.
type Merged[E Event[E]] struct {
	Device DeviceID
	Timestamped[E]
}

// compareMerged is the global order: Timestamped order, then device id.
func compareMerged[E Event[E]](a, b Merged[E]) int {
	if c := a.Timestamped.Compare(b.Timestamped); c != 0 {
		return c
	}
	return cmp.Compare(a.Device, b.Device)
}

// Merged returns the k-way merge of every device log in global order.
//
// The sequence is lazy and can be ranged over any number of times. It reads
// the logs as they are when iteration starts; the stream must not be mutated
// while an iteration is in progress.
func (s *Stream[E]) Merged() iter.Seq[Merged[E]] {
	return func(yield func(Merged[E]) bool) {
		h := make(mergeHeap[E], 0, len(s.logs))
		for _, device := range s.Devices() {
			events := s.logs[device].ordered()
			if len(events) == 0 {
				continue
			}
			h = append(h, &mergeCursor[E]{device: device, events: events})
		}
		heap.Init(&h)

		for h.Len() > 0 {
			top := h[0]
			if !yield(top.head()) {
				return
			}
			top.pos++
			if top.pos == len(top.events) {
				heap.Pop(&h)
			} else {
				heap.Fix(&h, 0)
			}
		}
	}
}

// mergeCursor walks one device's events in Timestamped order.
type mergeCursor[E Event[E]] struct {
	device DeviceID
	events []Timestamped[E]
	pos    int
}

func (c *mergeCursor[E]) head() Merged[E] {
	return Merged[E]{Device: c.device, Timestamped: c.events[c.pos]}
}

// mergeHeap is a min-heap of cursors keyed by their head event.
type mergeHeap[E Event[E]] []*mergeCursor[E]

func (h mergeHeap[E]) Len() int { return len(h) }

func (h mergeHeap[E]) Less(i, j int) bool {
	return compareMerged(h[i].head(), h[j].head()) < 0
}

func (h mergeHeap[E]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap[E]) Push(x any) {
	*h = append(*h, x.(*mergeCursor[E]))
}

func (h *mergeHeap[E]) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}
