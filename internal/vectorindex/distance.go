package vectorindex

// SquaredL2 returns the squared Euclidean distance between two vectors of
// equal length.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// distItem pairs a chunk position with its distance to a query.
type distItem struct {
	idx  uint32
	dist float32
}

// less orders by distance, then by position.
func (a distItem) less(b distItem) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.idx < b.idx
}

// distHeap is a simple min-heap for search
type distHeap struct {
	items []distItem
}

func (h *distHeap) len() int { return len(h.items) }

func (h *distHeap) push(item distItem) {
	h.items = append(h.items, item)
	// Bubble up
	i := len(h.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if !h.items[i].less(h.items[parent]) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *distHeap) pop() distItem {
	item := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	h.items = h.items[:last]
	h.bubbleDown(0)
	return item
}

func (h *distHeap) bubbleDown(i int) {
	for {
		left := 2*i + 1
		right := 2*i + 2
		smallest := i

		if left < len(h.items) && h.items[left].less(h.items[smallest]) {
			smallest = left
		}
		if right < len(h.items) && h.items[right].less(h.items[smallest]) {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// nearestList keeps the best items seen so far, sorted ascending and capped
// at a fixed size.
type nearestList struct {
	items []distItem
	limit int
}

func (l *nearestList) full() bool { return len(l.items) >= l.limit }

func (l *nearestList) worst() distItem { return l.items[len(l.items)-1] }

// offer inserts item if it belongs among the best limit items and reports
// whether it was kept.
func (l *nearestList) offer(item distItem) bool {
	if l.full() && !item.less(l.worst()) {
		return false
	}
	pos := len(l.items)
	for pos > 0 && item.less(l.items[pos-1]) {
		pos--
	}
	l.items = append(l.items, distItem{})
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = item
	if len(l.items) > l.limit {
		l.items = l.items[:l.limit]
	}
	return true
}
