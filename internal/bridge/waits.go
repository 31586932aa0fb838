package bridge

import (
	"fmt"
	"time"

	"github.com/openbracket/gdrb/internal/engine"
	"github.com/openbracket/gdrb/internal/protocol"
)

const defaultWaitTimeout = 5000 * time.Millisecond

// pendingWait is one outstanding wait_for. The node reference is resolved
// once at schedule time; each tick re-checks validity before reading.
type pendingWait struct {
	id       string
	node     engine.Node
	nodePath string
	property string
	want     string
	started  time.Time
	deadline time.Time
}

// scheduleWait validates a wait_for request and parks it for polling.
// Failures respond immediately; a parked wait responds out of order
// whenever it matches, expires or its node is freed.
func (b *Bridge) scheduleWait(req protocol.Request) {
	a := reqArgs(req.Args)
	path, ok := a.str("node")
	if !ok {
		b.reply(badArgs(req.ID, "node"))
		return
	}
	prop, ok := a.str("property")
	if !ok {
		b.reply(badArgs(req.ID, "property"))
		return
	}
	want, ok := a.raw("value")
	if !ok {
		b.reply(badArgs(req.ID, "value"))
		return
	}
	n := b.host.FindNode(path)
	if n == nil {
		b.reply(protocol.Error(req.ID, protocol.CodeNotFound, fmt.Sprintf("no node at path %q", path)))
		return
	}
	timeout := time.Duration(a.numOr("timeout_ms", float64(defaultWaitTimeout/time.Millisecond))) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	now := b.clk.Now()
	b.waits = append(b.waits, &pendingWait{
		id:       req.ID,
		node:     n,
		nodePath: path,
		property: prop,
		want:     engine.Stringify(want),
		started:  now,
		deadline: now.Add(timeout),
	})
}

// pollWaits resolves pending waits in schedule order. Match and expiry are
// checked in that order within a single poll, so a value that appears on
// the deadline tick still counts as matched.
func (b *Bridge) pollWaits() {
	if len(b.waits) == 0 {
		return
	}
	now := b.clk.Now()
	remaining := b.waits[:0]
	for _, w := range b.waits {
		if !w.node.Valid() {
			b.reply(protocol.Error(w.id, protocol.CodeNotFound, fmt.Sprintf("node %q freed while waiting", w.nodePath)))
			continue
		}
		// A read error is treated as "no value yet"; the property may
		// be defined later in the wait window.
		value, err := w.node.Get(w.property)
		if err != nil {
			value = nil
		}
		elapsed := now.Sub(w.started).Milliseconds()
		if err == nil && engine.Stringify(value) == w.want {
			b.reply(protocol.Ok(w.id, map[string]any{"matched": true, "elapsed_ms": elapsed}))
			continue
		}
		if !now.Before(w.deadline) {
			b.reply(protocol.Ok(w.id, map[string]any{
				"matched":    false,
				"elapsed_ms": elapsed,
				"last_value": engine.MarshalValue(value),
			}))
			continue
		}
		remaining = append(remaining, w)
	}
	b.waits = remaining
}

// deferRelease arms the single mouse-release slot. A second press before
// the release fires replaces the slot; only the newest release is owed.
func (b *Bridge) deferRelease(ev engine.InputEvent) {
	b.deferredRel = &ev
}

// applyDeferredRelease emits the owed mouse release at the top of the
// tick, giving the engine one full frame with the button held.
func (b *Bridge) applyDeferredRelease() {
	if b.deferredRel == nil {
		return
	}
	ev := *b.deferredRel
	b.deferredRel = nil
	ev.Pressed = false
	b.inject(ev)
}

// timedInjection is an input event owed to the engine at a future tick,
// such as a gamepad auto-release.
type timedInjection struct {
	at time.Time
	ev engine.InputEvent
}

func (b *Bridge) scheduleInjection(delay time.Duration, ev engine.InputEvent) {
	b.timed = append(b.timed, timedInjection{at: b.clk.Now().Add(delay), ev: ev})
}

func (b *Bridge) fireTimedInjections() {
	if len(b.timed) == 0 {
		return
	}
	now := b.clk.Now()
	remaining := b.timed[:0]
	for _, t := range b.timed {
		if now.Before(t.at) {
			remaining = append(remaining, t)
			continue
		}
		b.inject(t.ev)
	}
	b.timed = remaining
}
