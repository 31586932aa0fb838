package protocol

import (
	"bytes"
	"errors"
)

// MaxLineBytes caps how much unterminated input the splitter will buffer
// before the connection is considered abusive and dropped.
const MaxLineBytes = 10 << 20

// ErrLineTooLong reports that a client sent more than MaxLineBytes without
// a newline. The splitter discards its buffer when this happens.
var ErrLineTooLong = errors.New("protocol: line exceeds read buffer cap")

// LineSplitter accumulates raw socket reads and yields complete
// newline-terminated frames. Blank lines are skipped. The zero value is
// ready to use.
type LineSplitter struct {
	buf []byte
}

// Feed appends p to the internal buffer and returns every complete line
// now available, oldest first. Returned slices are copies and remain valid
// after further Feed calls.
func (s *LineSplitter) Feed(p []byte) ([][]byte, error) {
	s.buf = append(s.buf, p...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := make([]byte, i)
		copy(line, s.buf[:i])
		s.buf = s.buf[i+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if len(s.buf) > MaxLineBytes {
		s.buf = nil
		return lines, ErrLineTooLong
	}
	return lines, nil
}

// Reset discards any buffered partial line. Called when a new connection
// replaces the current one.
func (s *LineSplitter) Reset() {
	s.buf = nil
}
