package h1

import (
	"errors"
	"io"
	"strconv"
)

var (
	crlf     = []byte("\r\n")
	chunkEnd = []byte("0\r\n\r\n")
)

// ErrChunkEncoderEnded is returned by Write after End.
var ErrChunkEncoderEnded = errors.New("h1: write after chunked body end")

// ChunkEncoder frames writes as HTTP/1.1 chunked transfer-encoding.
type ChunkEncoder struct {
	w     io.Writer
	ended bool
	head  [18]byte
}

// NewChunkEncoder returns an encoder writing frames to w.
func NewChunkEncoder(w io.Writer) *ChunkEncoder {
	return &ChunkEncoder{w: w}
}

// Reset points the encoder at w and clears the end-of-stream flag.
func (e *ChunkEncoder) Reset(w io.Writer) {
	e.w = w
	e.ended = false
}

// Write emits one chunk holding p. Empty writes emit nothing.
func (e *ChunkEncoder) Write(p []byte) (int, error) {
	if e.ended {
		return 0, ErrChunkEncoderEnded
	}
	if len(p) == 0 {
		return 0, nil
	}
	h := strconv.AppendInt(e.head[:0], int64(len(p)), 16)
	h = append(h, '\r', '\n')
	if _, err := e.w.Write(h); err != nil {
		return 0, err
	}
	n, err := e.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := e.w.Write(crlf); err != nil {
		return n, err
	}
	return n, nil
}

// End writes the terminating zero-length chunk. Calling End twice is a no-op.
func (e *ChunkEncoder) End() error {
	if e.ended {
		return nil
	}
	e.ended = true
	_, err := e.w.Write(chunkEnd)
	return err
}

// Ended reports whether the terminating chunk was written.
func (e *ChunkEncoder) Ended() bool {
	return e.ended
}
