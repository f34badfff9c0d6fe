package h1

import (
	"bytes"
	"errors"
	"io"
	"net/http/httputil"
	"testing"
)

func TestChunkEncoder_Framing(t *testing.T) {
	var buf bytes.Buffer
	enc := NewChunkEncoder(&buf)

	if _, err := enc.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write(make([]byte, 26)); err != nil {
		t.Fatal(err)
	}
	if n, err := enc.Write(nil); n != 0 || err != nil {
		t.Fatalf("empty write = %d, %v", n, err)
	}
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}

	want := "5\r\nhello\r\n1a\r\n" + string(make([]byte, 26)) + "\r\n0\r\n\r\n"
	if buf.String() != want {
		t.Errorf("encoded = %q\nwant      %q", buf.String(), want)
	}
}

func TestChunkEncoder_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
	}{
		{"empty body", nil},
		{"single chunk", []string{"hello world"}},
		{"many chunks", []string{"a", "bc", "def", "", "ghij"}},
		{"large chunk", []string{string(bytes.Repeat([]byte("x"), 70000))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := NewChunkEncoder(&buf)
			var want string
			for _, c := range tt.chunks {
				if _, err := enc.Write([]byte(c)); err != nil {
					t.Fatal(err)
				}
				want += c
			}
			if err := enc.End(); err != nil {
				t.Fatal(err)
			}

			got, err := io.ReadAll(httputil.NewChunkedReader(&buf))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if string(got) != want {
				t.Errorf("decoded %d bytes, want %d", len(got), len(want))
			}
		})
	}
}

func TestChunkEncoder_WriteAfterEnd(t *testing.T) {
	var buf bytes.Buffer
	enc := NewChunkEncoder(&buf)
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}
	if err := enc.End(); err != nil {
		t.Fatalf("second End = %v", err)
	}
	if buf.String() != "0\r\n\r\n" {
		t.Errorf("terminator written twice: %q", buf.String())
	}
	if _, err := enc.Write([]byte("x")); !errors.Is(err, ErrChunkEncoderEnded) {
		t.Errorf("write after end = %v, want ErrChunkEncoderEnded", err)
	}
	if !enc.Ended() {
		t.Error("Ended() = false")
	}

	enc.Reset(&buf)
	if enc.Ended() {
		t.Error("Ended() = true after Reset")
	}
}
