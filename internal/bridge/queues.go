package bridge

import (
	"sync"

	"github.com/openbracket/gdrb/internal/protocol"
)

// inbound is one wire line after parsing: either a request or the parse
// failure that will be answered in its place. FIFO order through the queue
// is what keeps responses in request order.
type inbound struct {
	req  protocol.Request
	werr *protocol.WireError
}

// requestQueue carries parsed envelopes from the I/O worker to the frame
// tick. Mutexes guard only the append and the swap; no engine call or I/O
// ever happens under them.
type requestQueue struct {
	mu    sync.Mutex
	items []inbound
}

func (q *requestQueue) push(item inbound) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

func (q *requestQueue) drain() []inbound {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// lineQueue carries serialized response lines from the frame tick to the
// I/O worker.
type lineQueue struct {
	mu    sync.Mutex
	lines [][]byte
}

func (q *lineQueue) push(line []byte) {
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()
}

func (q *lineQueue) drain() [][]byte {
	q.mu.Lock()
	lines := q.lines
	q.lines = nil
	q.mu.Unlock()
	return lines
}
