package loader

import "sync/atomic"

// gates holds one independent on/off cell per slot. The controller and the slot itself race on
// a cell; a slot reading during a flip may see either value.
type gates []atomic.Bool

func newGates(n int) gates {
	return make(gates, n)
}

func (g gates) open(slot int)  { g[slot].Store(true) }
func (g gates) close(slot int) { g[slot].Store(false) }

func (g gates) isOpen(slot int) bool {
	return g[slot].Load()
}

// enabled returns the indexes of the open gates in ascending order.
func (g gates) enabled() []int {
	var out []int
	for i := range g {
		if g[i].Load() {
			out = append(out, i)
		}
	}
	return out
}
