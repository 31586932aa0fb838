package bridge

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/openbracket/gdrb/internal/protocol"
)

// ioLoop is the single background worker. It owns the listener, the one
// active client socket and the framing buffer; it never touches engine
// state. Everything it does is polled with short deadlines so the
// shutdown flag is observed within a few milliseconds.
func (b *Bridge) ioLoop() {
	defer close(b.done)
	tcp := b.ln.(*net.TCPListener)
	var (
		conn     net.Conn
		splitter protocol.LineSplitter
	)
	// Dropping a client also discards responses addressed to it; a
	// reconnecting client expects fresh correlation.
	dropClient := func() {
		if conn == nil {
			return
		}
		conn.Close()
		conn = nil
		splitter.Reset()
		b.out.drain()
	}
	defer dropClient()

	readBuf := make([]byte, 32*1024)
	for !b.shutdown.Load() {
		idle := true

		_ = tcp.SetDeadline(time.Now().Add(time.Millisecond))
		next, err := tcp.Accept()
		switch {
		case err == nil:
			// New connection wins; the stale client is closed.
			if conn != nil {
				b.log.Debug("preempting client", "remote", conn.RemoteAddr())
			}
			dropClient()
			conn = next
			idle = false
			b.log.Debug("client connected", "remote", conn.RemoteAddr())
		case isTimeout(err):
		default:
			if !b.shutdown.Load() {
				b.log.Error("listener failed", "err", err)
			}
			return
		}

		if conn != nil {
			_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
			n, rerr := conn.Read(readBuf)
			if n > 0 {
				idle = false
				lines, serr := splitter.Feed(readBuf[:n])
				for _, line := range lines {
					req, werr := protocol.ParseLine(line)
					b.in.push(inbound{req: req, werr: werr})
				}
				if serr != nil {
					b.log.Warn("dropping client: unterminated frame exceeded buffer cap")
					dropClient()
				}
			}
			if conn != nil && rerr != nil && !isTimeout(rerr) {
				if !errors.Is(rerr, io.EOF) {
					b.log.Debug("client read failed", "err", rerr)
				}
				dropClient()
			}
		}

		if conn != nil {
			for _, line := range b.out.drain() {
				_ = conn.SetWriteDeadline(time.Now().Add(250 * time.Millisecond))
				if _, werr := conn.Write(line); werr != nil {
					b.log.Debug("client write failed", "err", werr)
					dropClient()
					break
				}
				idle = false
			}
		} else {
			// No client to address; these responses are undeliverable.
			b.out.drain()
		}

		if idle {
			time.Sleep(time.Millisecond)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
