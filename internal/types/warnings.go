package types

import "sync"

// Warnings is an append-only diagnostics list shared by the stages of one run.
// It is safe for concurrent use.
type Warnings struct {
	mu   sync.Mutex
	list []string
}

func (w *Warnings) Add(msgs ...string) {
	if len(msgs) == 0 {
		return
	}
	w.mu.Lock()
	w.list = append(w.list, msgs...)
	w.mu.Unlock()
}

// List returns a copy in insertion order.
func (w *Warnings) List() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.list))
	copy(out, w.list)
	return out
}

func (w *Warnings) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.list)
}
