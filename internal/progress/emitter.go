package progress

import (
	"context"
	"sync"

	"repoaudit/internal/types"
)

// Emitter receives events. Implementations must not block the pipeline.
type Emitter interface {
	Emit(Event)
}

// Func adapts a function to Emitter.
type Func func(Event)

func (f Func) Emit(e Event) { f(e) }

type emitterKey struct{}

func WithEmitter(ctx context.Context, e Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFrom returns the emitter attached to ctx, or one that discards.
func EmitterFrom(ctx context.Context) Emitter {
	if e, ok := ctx.Value(emitterKey{}).(Emitter); ok && e != nil {
		return e
	}
	return nop{}
}

type nop struct{}

func (nop) Emit(Event) {}

// Tracker enforces the event stream shape for one run: progress never goes
// backwards and exactly one terminal event is emitted.
type Tracker struct {
	mu   sync.Mutex
	out  Emitter
	last int
	done bool
}

func NewTracker(out Emitter) *Tracker {
	if out == nil {
		out = nop{}
	}
	return &Tracker{out: out}
}

func (t *Tracker) Stage(stage string, pct int, message string, details map[string]any) {
	t.emit(Event{Kind: KindProgress, Stage: stage, Progress: pct, Message: message, Details: details})
}

func (t *Tracker) Complete(report *types.ScanReport) {
	t.emit(Event{Kind: KindComplete, Stage: StageComplete, Progress: 100, Message: "audit complete", Report: report})
}

func (t *Tracker) Fail(err error) {
	msg := "audit failed"
	if err != nil {
		msg = err.Error()
	}
	t.emit(Event{Kind: KindError, Stage: StageError, Message: msg, Error: msg})
}

// Done reports whether a terminal event was emitted.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Tracker) emit(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	if e.Progress > 100 {
		e.Progress = 100
	}
	if e.Progress < t.last {
		e.Progress = t.last
	}
	t.last = e.Progress
	t.done = e.Terminal()
	t.out.Emit(e)
}
