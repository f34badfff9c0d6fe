// Package h1 provides the HTTP/1.1 wire pieces: header framing, chunked encoding and the response writer.
package h1

// frameState tracks progress towards the CRLFCRLF header terminator.
type frameState uint8

const (
	stateNone frameState = iota
	stateCR
	stateCRLF
	stateCRLFCR
	stateDone
)

// FrameResult is the outcome of one Append call.
//
// The zero value means more bytes are needed. When Header is non-nil a complete
// header block was found; Remaining holds the bytes of the same call that follow it.
// Overflow reports that the block exceeded the configured maximum.
type FrameResult struct {
	Header    []byte
	Remaining []byte
	Overflow  bool
}

// FrameParser finds the end of a request header block on an arbitrary byte stream.
// It knows nothing about header names or values.
type FrameParser struct {
	buf   []byte
	pos   int
	state frameState
}

// NewFrameParser creates a parser whose buffer holds at most maxHeaderSize bytes.
func NewFrameParser(maxHeaderSize int) *FrameParser {
	if maxHeaderSize <= 0 {
		maxHeaderSize = 8192
	}
	return &FrameParser{buf: make([]byte, maxHeaderSize)}
}

// Append consumes data until a header boundary is found or the buffer is full.
//
// The returned Header aliases the parser's buffer and is only valid until the next
// Append or Reset. Remaining aliases data.
func (p *FrameParser) Append(data []byte) FrameResult {
	for i, b := range data {
		if p.pos >= len(p.buf) {
			p.Reset()
			return FrameResult{Overflow: true}
		}
		p.buf[p.pos] = b
		p.pos++

		switch b {
		case '\r':
			if p.state == stateCRLF {
				p.state = stateCRLFCR
			} else {
				p.state = stateCR
			}
		case '\n':
			switch p.state {
			case stateCR:
				p.state = stateCRLF
			case stateCRLFCR:
				p.state = stateDone
			default:
				p.state = stateNone
			}
		default:
			p.state = stateNone
		}

		if p.state == stateDone {
			header := p.buf[:p.pos]
			p.pos = 0
			p.state = stateNone
			return FrameResult{Header: header, Remaining: data[i+1:]}
		}
	}
	return FrameResult{}
}

// Buffered returns how many bytes of an incomplete header block are held.
func (p *FrameParser) Buffered() int {
	return p.pos
}

// Size returns the maximum header block size.
func (p *FrameParser) Size() int {
	return len(p.buf)
}

// Reset discards any partial header block.
func (p *FrameParser) Reset() {
	p.pos = 0
	p.state = stateNone
}
