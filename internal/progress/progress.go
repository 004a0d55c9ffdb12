// Package progress implements the single shared progress bar described in
// spec sections 2 and 5: advanced as compile tasks complete, with
// diagnostics written as plain lines to the same output the bar is drawn
// on. When stdout is not a terminal (mattn/go-isatty), or once the
// bar has been stopped, output falls back to plain lines — the "weak
// reference" behavior spec section 5 calls for, approximated here with an
// atomic liveness flag rather than a language-level weak pointer.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Reporter owns the one progress bar for a build invocation.
type Reporter struct {
	mu      sync.Mutex
	live    atomic.Bool
	out     io.Writer
	prog    *mpb.Progress
	bar     *mpb.Bar
	isTerm  bool
}

// New creates a Reporter with total units of work (e.g. the number of
// sources to compile plus one for the link step). When out is not a
// terminal, the returned Reporter skips drawing a live bar: Increment
// becomes a no-op and PrintAbove a plain fmt.Fprintln, matching the
// teacher's isTerminal gate in internal/batch/batch.go.
func New(out *os.File, total int) *Reporter {
	r := &Reporter{out: out, isTerm: isatty.IsTerminal(out.Fd())}
	if !r.isTerm || total <= 0 {
		return r
	}
	r.prog = mpb.New(mpb.WithOutput(out), mpb.WithAutoRefresh())
	r.bar = r.prog.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name("build ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	r.live.Store(true)
	return r
}

// Increment advances the bar by one completed task.
func (r *Reporter) Increment() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live.Load() && r.bar != nil {
		r.bar.Increment()
		return
	}
	// no-op when not live: a bare counter with no bar is not worth printing.
}

// PrintAbove writes one line to the Reporter's output with fmt.Fprintln,
// the same way whether or not a live bar is being drawn; the line is not
// routed through mpb, so mpb does not reposition it relative to the bar.
// Messages arriving after Stop are printed the same way.
func (r *Reporter) PrintAbove(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live.Load() && r.prog != nil {
		fmt.Fprintln(r.out, line)
		return
	}
	fmt.Fprintln(r.out, line)
}

// Stop finalizes the bar, marking this Reporter no longer live. Safe to
// call more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.live.CompareAndSwap(true, false) {
		return
	}
	if r.bar != nil {
		r.bar.Abort(false)
	}
	if r.prog != nil {
		r.prog.Wait()
	}
}
