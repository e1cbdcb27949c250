package loopguard

// window is a fixed-size FIFO of signature strings. Appending past capacity
// evicts the oldest entry.
type window struct {
	entries []string
	size    int
}

func newWindow(size int) *window {
	if size <= 0 {
		size = 1
	}
	return &window{size: size}
}

// append adds a signature, evicting the oldest entry on overflow.
func (w *window) append(sig string) {
	w.entries = append(w.entries, sig)
	if len(w.entries) > w.size {
		w.entries = w.entries[1:]
	}
}

// count returns how many times sig appears in the window.
func (w *window) count(sig string) int {
	n := 0
	for _, e := range w.entries {
		if e == sig {
			n++
		}
	}
	return n
}

// clear drops every entry.
func (w *window) clear() {
	w.entries = nil
}

func (w *window) len() int {
	return len(w.entries)
}
