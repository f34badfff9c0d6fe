// Package transport defines the response capability shared by the HTTP/1.1 and HTTP/2 adapters.
package transport

import "io"

// Kind tags an accepted connection with the protocol it speaks.
// A connection is classified once, at accept time, and keeps its kind for life.
type Kind uint8

const (
	// KindH1 is a byte-stream HTTP/1.x connection.
	KindH1 Kind = iota + 1
	// KindH2 is an HTTP/2 stream multiplexed over one connection.
	KindH2
)

// String returns the protocol label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindH1:
		return "h1"
	case KindH2:
		return "h2"
	default:
		return "unknown"
	}
}

// ResponseTransport maps unified response operations onto protocol wire operations.
//
// SetHeader, SetStatus and SetConnectionClose only take effect before the head is written.
// Send, Stream and End finish the response; Write streams an incremental body whose
// length is not known up front. Reset restores the pre-request state so the owner can be pooled.
type ResponseTransport interface {
	Kind() Kind
	SetHeader(name, value string)
	SetStatus(code int, message string)
	SetConnectionClose()
	Send(body []byte) error
	Stream(r io.Reader, size int64) error
	Write(p []byte) (int, error)
	End() error
	HeadersSent() bool
	Ended() bool
	Written() int64
	Reset()
}
