package translator

// FrameParser decodes a single complete line of a provider stream.
type FrameParser func(line string) Frame

// Decoder turns raw body chunks into frames using a provider's framing.
// Once a FrameDone has been produced, further input is ignored.
type Decoder struct {
	parse FrameParser
	lines LineBuffer
	done  bool

	// OnMalformed, if set, is called with each line whose JSON was invalid.
	OnMalformed func(line string)
}

// NewDecoder creates a decoder for the given framing.
func NewDecoder(parse FrameParser) *Decoder {
	return &Decoder{parse: parse}
}

// Done reports whether the terminal frame has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed consumes a chunk and returns the delta and done frames it completed,
// in order. Skipped and malformed lines are not returned.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done {
		return nil
	}
	return d.process(d.lines.Feed(chunk))
}

// Finish processes whatever fragment is left once the body has ended.
func (d *Decoder) Finish() []Frame {
	if d.done {
		return nil
	}
	rest, ok := d.lines.Flush()
	if !ok {
		return nil
	}
	return d.process([]string{rest})
}

func (d *Decoder) process(lines []string) []Frame {
	var frames []Frame
	for _, line := range lines {
		frame := d.parse(line)
		switch frame.Kind {
		case FrameDelta:
			frames = append(frames, frame)
		case FrameDone:
			d.done = true
			return append(frames, frame)
		case FrameMalformed:
			if d.OnMalformed != nil {
				d.OnMalformed(line)
			}
		}
	}
	return frames
}
