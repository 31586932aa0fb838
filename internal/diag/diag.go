// Package diag collects engine diagnostics (errors, warnings, script and
// shader failures, explicit messages) into a bounded ring that clients
// poll incrementally by index cursor.
package diag

import (
	"runtime"
	"sync"

	"github.com/benbjohnson/clock"
)

// Entry kinds.
const (
	KindError   = "error"
	KindWarning = "warning"
	KindScript  = "script"
	KindShader  = "shader"
	KindMessage = "message"
)

// RingCap is how many entries the ring retains. Overflow drops oldest.
const RingCap = 500

// Entry is one recorded diagnostic. Index increases by one per entry for
// the life of the ring and never repeats, so clients can use it as a
// resume cursor even after older entries have been evicted.
type Entry struct {
	Index       uint64 `json:"index"`
	Kind        string `json:"kind"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Function    string `json:"function"`
	Code        string `json:"code"`
	Rationale   string `json:"rationale"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// Ring is a fixed-capacity diagnostic buffer. Writers may call Append from
// any goroutine; reads snapshot under the same mutex. Append never logs
// and never blocks on anything but the mutex, so it is safe to call from
// inside a logging pipeline.
type Ring struct {
	mu    sync.Mutex
	buf   []Entry // circular once full
	pos   int     // next overwrite position
	total uint64  // entries ever appended; the next index to assign
	errs  uint64
	warns uint64
	clk   clock.Clock
}

// New returns an empty ring. A nil clk falls back to the wall clock; tests
// pass a mock to control timestamps.
func New(clk clock.Clock) *Ring {
	if clk == nil {
		clk = clock.New()
	}
	return &Ring{buf: make([]Entry, 0, RingCap), clk: clk}
}

// Append records e, assigning its Index and stamping TimestampMS when
// unset. Script and shader failures count toward the error total.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Index = r.total
	if e.TimestampMS == 0 {
		e.TimestampMS = r.clk.Now().UnixMilli()
	}
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, e)
	} else {
		r.buf[r.pos] = e
		r.pos = (r.pos + 1) % cap(r.buf)
	}
	r.total++
	switch e.Kind {
	case KindWarning:
		r.warns++
	case KindMessage:
	default:
		r.errs++
	}
}

// Report records a diagnostic on behalf of the caller, resolving file,
// line and function from the call site.
func (r *Ring) Report(kind, code, rationale string) {
	e := Entry{Kind: kind, Code: code, Rationale: rationale}
	if pc, file, line, ok := runtime.Caller(1); ok {
		e.File = file
		e.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			e.Function = fn.Name()
		}
	}
	r.Append(e)
}

// Since returns every retained entry with Index >= index, oldest first,
// plus the cursor to pass next time. The cursor is the index the next
// appended entry will receive, independent of the filter.
func (r *Ring) Since(index uint64) ([]Entry, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ordered := r.orderedLocked()
	start := 0
	for start < len(ordered) && ordered[start].Index < index {
		start++
	}
	out := make([]Entry, len(ordered)-start)
	copy(out, ordered[start:])
	return out, r.total
}

// orderedLocked returns the ring contents oldest to newest. Caller holds mu.
func (r *Ring) orderedLocked() []Entry {
	if len(r.buf) < cap(r.buf) || r.pos == 0 {
		return r.buf
	}
	out := make([]Entry, len(r.buf))
	copy(out, r.buf[r.pos:])
	copy(out[len(r.buf)-r.pos:], r.buf[:r.pos])
	return out
}

// Counts returns the running error and warning totals. Totals keep
// counting past evicted entries.
func (r *Ring) Counts() (errors, warnings uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs, r.warns
}

// Clear resets the ring, the totals and the index sequence. Test hook;
// clients never trigger it.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = r.buf[:0]
	r.pos = 0
	r.total = 0
	r.errs = 0
	r.warns = 0
}
