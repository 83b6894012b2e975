package translator

import "bytes"

// LineBuffer splits an incrementally read body into complete lines. A line
// cut by a read boundary is held back until its newline arrives, so the
// sequence of lines does not depend on how the body was chunked.
type LineBuffer struct {
	buf []byte
}

// Feed appends a chunk and returns every line it completed, without the
// trailing newline. The last incomplete fragment is retained.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(b.buf[:i]))
		b.buf = b.buf[i+1:]
	}

	// Reclaim the consumed prefix once nothing is pending.
	if len(b.buf) == 0 {
		b.buf = nil
	}
	return lines
}

// Flush returns the retained fragment, if any, and empties the buffer.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.buf) == 0 {
		return "", false
	}
	rest := string(b.buf)
	b.buf = nil
	return rest, true
}
