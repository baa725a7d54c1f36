package overlay

import (
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/gameoverlay/gameoverlay/internal/metrics"
)

// RenderFunc draws the overlay for one frame. It runs on the target's
// render thread and must return promptly.
type RenderFunc func(frame uint64)

// Dispatcher is the body of a frame presentation hook: it renders the
// overlay and then always forwards to the original function.
type Dispatcher struct {
	render atomic.Pointer[RenderFunc]
	frames atomic.Uint64
	panics atomic.Uint64

	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewDispatcher returns a dispatcher with no renderer.
func NewDispatcher(m *metrics.Collector, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{metrics: m, logger: logger}
}

// SetRender replaces the renderer. Nil stops rendering.
func (d *Dispatcher) SetRender(fn RenderFunc) {
	if fn == nil {
		d.render.Store(nil)
		return
	}
	d.render.Store(&fn)
}

// Frame renders and then calls original, whose result it returns. A
// panicking renderer is contained; original still runs.
func Frame[T any](d *Dispatcher, original func() T) T {
	d.draw()
	return original()
}

// Present is Frame for originals without a result.
func (d *Dispatcher) Present(original func()) {
	d.draw()
	original()
}

func (d *Dispatcher) draw() {
	n := d.frames.Add(1)
	d.metrics.IncFrame()

	fn := d.render.Load()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if d.panics.Add(1) == 1 {
				d.logger.Error("overlay: render panicked", "frame", n, "panic", r)
			}
			d.metrics.IncRenderPanic()
		}
	}()
	(*fn)(n)
}

// Frames returns the number of intercepted frames.
func (d *Dispatcher) Frames() uint64 { return d.frames.Load() }

// Panics returns the number of contained render panics.
func (d *Dispatcher) Panics() uint64 { return d.panics.Load() }
