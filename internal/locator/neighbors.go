package locator

import "math"

// Neighbor is a candidate point of a nearest point search
type Neighbor struct {
	ID    int
	Dist2 float64
}

// Reports whether a is closer than b. Equal distances are ordered by id so that every search
// returns the lowest id among equidistant points.
func Closer(a, b Neighbor) bool {
	return a.Dist2 < b.Dist2 || a.Dist2 == b.Dist2 && a.ID < b.ID
}

// NeighborList keeps the n closest candidates seen so far, sorted by increasing distance.
// n is small in practice so insertion is a linear shift.
type NeighborList struct {
	n     int
	items []Neighbor
}

func NewNeighborList(n int) *NeighborList {
	return &NeighborList{n: n, items: make([]Neighbor, 0, n)}
}

func (l *NeighborList) Insert(id int, dist2 float64) {
	c := Neighbor{ID: id, Dist2: dist2}
	if len(l.items) == l.n {
		if l.n == 0 || !Closer(c, l.items[l.n-1]) {
			return
		}
		l.items = l.items[:l.n-1]
	}
	pos := len(l.items)
	l.items = append(l.items, c)
	for pos > 0 && Closer(c, l.items[pos-1]) {
		l.items[pos] = l.items[pos-1]
		pos--
	}
	l.items[pos] = c
}

func (l *NeighborList) Len() int {
	return len(l.items)
}

func (l *NeighborList) Full() bool {
	return len(l.items) == l.n
}

// Returns the squared distance a candidate must not exceed to enter the list
func (l *NeighborList) WorstDistance2() float64 {
	if !l.Full() || l.n == 0 {
		return math.Inf(1)
	}
	return l.items[l.n-1].Dist2
}

func (l *NeighborList) IDs() []int {
	ids := make([]int, len(l.items))
	for i, item := range l.items {
		ids[i] = item.ID
	}
	return ids
}

func (l *NeighborList) Neighbors() []Neighbor {
	return l.items
}
