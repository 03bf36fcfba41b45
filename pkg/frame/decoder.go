package frame

type decodeState int

const (
	stateAwaitAlignment decodeState = iota // no start markers at offset 0
	stateHaveStart                         // start markers present, end marker wrong
	stateFrameComplete                     // full valid frame at offset 0
)

// align classifies a Size-long window taken at buffer offset 0.
func align(win []byte) decodeState {
	if win[0] != StartA || win[1] != StartB {
		return stateAwaitAlignment
	}
	if win[Size-1] != End {
		return stateHaveStart
	}
	return stateFrameComplete
}

// Stats counts what the decoder did with the bytes it was fed.
type Stats struct {
	Frames    uint64
	Discarded uint64
}

// Decoder turns an arbitrary chunked byte stream into Samples.
//
// Bytes are appended at the tail of the accumulation buffer and consumed from
// its head only. A frame is recognized at offset 0 only; when the head is not
// a valid frame exactly one byte is dropped and alignment is retried.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf   []byte
	stats Stats
}

// Feed appends p to the buffer and emits every complete frame now available,
// in stream order. It returns the number of emitted samples.
func (d *Decoder) Feed(p []byte, emit func(Sample)) int {
	d.buf = append(d.buf, p...)

	var head, emitted int
	for len(d.buf)-head >= Size {
		win := d.buf[head : head+Size]
		if align(win) != stateFrameComplete {
			// false start or garbage: drop one byte and realign
			head++
			d.stats.Discarded++
			continue
		}
		s := decode(win)
		head += Size
		d.stats.Frames++
		emitted++
		if emit != nil {
			emit(s)
		}
	}

	if head > 0 {
		n := copy(d.buf, d.buf[head:])
		d.buf = d.buf[:n]
	}
	return emitted
}

// Buffered returns the number of unconsumed bytes.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Stats returns the counters accumulated since the last Reset.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset drops buffered bytes and counters.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.stats = Stats{}
}
