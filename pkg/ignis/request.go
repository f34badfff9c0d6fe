package ignis

import (
	"bytes"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Request is the parsed request of one cycle. Fields are overwritten on reuse.
type Request struct {
	Method  string
	Path    string // raw request target, including any query
	Version string
	Host    string
	Headers Headers
	// Cookies is filled by the Cookies middleware.
	Cookies []*http.Cookie

	// ContentLength is -1 when the length is unknown.
	ContentLength int64
	Chunked       bool
	KeepAlive     bool

	RemoteAddr string
	TLS        *tls.ConnectionState
	Body       io.Reader
}

func (r *Request) reset() {
	r.Method = ""
	r.Path = ""
	r.Version = ""
	r.Host = ""
	r.Headers.Reset()
	clear(r.Cookies)
	r.Cookies = r.Cookies[:0]
	r.ContentLength = -1
	r.Chunked = false
	r.KeepAlive = false
	r.RemoteAddr = ""
	r.TLS = nil
	r.Body = http.NoBody
}

// URLPath returns the request path without the query string.
func (r *Request) URLPath() string {
	if i := strings.IndexByte(r.Path, '?'); i >= 0 {
		return r.Path[:i]
	}
	return r.Path
}

// Query returns the query parameter value for the given key.
func (r *Request) Query(key string) string {
	if idx := strings.IndexByte(r.Path, '?'); idx >= 0 {
		return parseQuery(r.Path[idx+1:], key)
	}
	return ""
}

// Cookie returns the named cookie parsed by the Cookies middleware.
func (r *Request) Cookie(name string) (*http.Cookie, bool) {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// parseQuery extracts a query parameter value from a query string.
func parseQuery(query, key string) string {
	for len(query) > 0 {
		end := strings.IndexByte(query, '&')
		if end == -1 {
			end = len(query)
		}

		pair := query[:end]
		query = query[end:]
		if len(query) > 0 {
			query = query[1:]
		}

		eq := strings.IndexByte(pair, '=')
		if eq == -1 {
			continue
		}

		if pair[:eq] == key {
			value, _ := url.QueryUnescape(pair[eq+1:])
			return value
		}
	}
	return ""
}

var supportedMethods = [...]string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodOptions,
	http.MethodTrace,
}

func methodSupported(m string) bool {
	for _, s := range supportedMethods {
		if s == m {
			return true
		}
	}
	return false
}

var crlfBytes = []byte("\r\n")

// parseHeaderBlock fills req from a complete header block ending in CRLFCRLF.
// Errors that leave the body framing known are returned non-fatal, after framing
// fields are set, so the caller can drain the body and keep the connection.
func parseHeaderBlock(req *Request, block []byte) *ParseError {
	lineEnd := bytes.Index(block, crlfBytes)
	if lineEnd <= 0 {
		return &ParseError{Status: 400, Reason: "malformed request line", Fatal: true}
	}
	if err := parseRequestLine(req, block[:lineEnd]); err != nil {
		return err
	}
	rest := block[lineEnd+2:]

	req.ContentLength = -1
	req.KeepAlive = req.Version == "HTTP/1.1"
	var (
		malformed  bool
		sawLength  bool
		connClose  bool
		connKeep   bool
		otherCodec bool
	)
	for len(rest) > 0 {
		end := bytes.Index(rest, crlfBytes)
		if end < 0 {
			break
		}
		line := rest[:end]
		rest = rest[end+2:]
		if len(line) == 0 {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			// obsolete line folding
			return &ParseError{Status: 400, Reason: "folded header line", Fatal: true}
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 || !validFieldName(line[:colon]) {
			malformed = true
			continue
		}
		name := strings.ToLower(string(line[:colon]))
		value := string(bytes.Trim(line[colon+1:], " \t"))
		req.Headers.fields = append(req.Headers.fields, [2]string{name, value})

		switch name {
		case "host":
			req.Host = value
		case "content-length":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 || (sawLength && n != req.ContentLength) {
				return &ParseError{Status: 400, Reason: "invalid content-length", Fatal: true}
			}
			sawLength = true
			req.ContentLength = n
		case "transfer-encoding":
			if asciiContainsFold(value, "chunked") {
				req.Chunked = true
			} else {
				otherCodec = true
			}
		case "connection":
			if asciiContainsFold(value, "close") {
				connClose = true
			}
			if asciiContainsFold(value, "keep-alive") {
				connKeep = true
			}
		}
	}

	switch {
	case req.Chunked && sawLength:
		return &ParseError{Status: 400, Reason: "both content-length and chunked framing", Fatal: true}
	case otherCodec && !req.Chunked:
		return &ParseError{Status: 501, Reason: "unsupported transfer-encoding", Fatal: true}
	case req.Chunked:
		req.ContentLength = -1
	case !sawLength:
		req.ContentLength = 0
	}

	switch {
	case connClose:
		req.KeepAlive = false
	case connKeep:
		req.KeepAlive = true
	}

	switch {
	case malformed:
		return &ParseError{Status: 400, Reason: "malformed header line"}
	case !methodSupported(req.Method):
		return &ParseError{Status: 405, Reason: "method not allowed"}
	case req.Host == "" && req.Version == "HTTP/1.1":
		return &ParseError{Status: 400, Reason: "missing host header"}
	}
	return nil
}

func parseRequestLine(req *Request, line []byte) *ParseError {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return &ParseError{Status: 400, Reason: "malformed request line", Fatal: true}
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 <= 0 {
		return &ParseError{Status: 400, Reason: "malformed request line", Fatal: true}
	}
	sp2 += sp1 + 1
	method, target, version := line[:sp1], line[sp1+1:sp2], line[sp2+1:]
	if bytes.IndexByte(version, ' ') >= 0 || !validFieldName(method) {
		return &ParseError{Status: 400, Reason: "malformed request line", Fatal: true}
	}

	switch string(version) {
	case "HTTP/1.1":
		req.Version = "HTTP/1.1"
	case "HTTP/1.0":
		req.Version = "HTTP/1.0"
	default:
		if bytes.HasPrefix(version, []byte("HTTP/")) {
			return &ParseError{Status: 505, Reason: "unsupported http version", Fatal: true}
		}
		return &ParseError{Status: 400, Reason: "malformed request line", Fatal: true}
	}

	if string(method) == http.MethodGet {
		req.Method = http.MethodGet
	} else {
		req.Method = string(method)
	}
	if len(target) == 1 && target[0] == '/' {
		req.Path = "/"
	} else {
		req.Path = string(target)
	}
	return nil
}

// validFieldName reports whether b is an RFC 7230 token.
func validFieldName(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c <= ' ' || c >= 0x7f {
			return false
		}
		switch c {
		case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}':
			return false
		}
	}
	return true
}

// asciiContainsFold reports whether sub is within s using ASCII case-insensitive matching.
func asciiContainsFold(s, sub string) bool {
	n := len(sub)
	if n == 0 {
		return true
	}
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], sub) {
			return true
		}
	}
	return false
}
