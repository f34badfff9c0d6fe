package ignis

import "strings"

// Headers is an ordered list of header fields with case-insensitive lookup.
// Names are stored lowercased; iteration follows insertion order.
type Headers struct {
	fields [][2]string
}

// Add appends a field, keeping any existing values for the same name.
func (h *Headers) Add(key, value string) {
	h.fields = append(h.fields, [2]string{strings.ToLower(key), value})
}

// Set sets a header value, replacing any existing values.
func (h *Headers) Set(key, value string) {
	lowerKey := strings.ToLower(key)
	for i := range h.fields {
		if h.fields[i][0] == lowerKey {
			h.fields[i][1] = value
			h.delFrom(lowerKey, i+1)
			return
		}
	}
	h.fields = append(h.fields, [2]string{lowerKey, value})
}

// Get returns the first value for key.
func (h *Headers) Get(key string) string {
	lowerKey := strings.ToLower(key)
	for i := range h.fields {
		if h.fields[i][0] == lowerKey {
			return h.fields[i][1]
		}
	}
	return ""
}

// Values returns all values for key in insertion order.
func (h *Headers) Values(key string) []string {
	lowerKey := strings.ToLower(key)
	var out []string
	for i := range h.fields {
		if h.fields[i][0] == lowerKey {
			out = append(out, h.fields[i][1])
		}
	}
	return out
}

// Has checks if a header exists.
func (h *Headers) Has(key string) bool {
	lowerKey := strings.ToLower(key)
	for i := range h.fields {
		if h.fields[i][0] == lowerKey {
			return true
		}
	}
	return false
}

// Del removes every field named key.
func (h *Headers) Del(key string) {
	h.delFrom(strings.ToLower(key), 0)
}

func (h *Headers) delFrom(lowerKey string, start int) {
	j := start
	for i := start; i < len(h.fields); i++ {
		if h.fields[i][0] == lowerKey {
			continue
		}
		h.fields[j] = h.fields[i]
		j++
	}
	clear(h.fields[j:])
	h.fields = h.fields[:j]
}

// All returns all headers as a slice of key-value pairs. The slice must not be retained.
func (h *Headers) All() [][2]string {
	return h.fields
}

// Len returns the number of fields.
func (h *Headers) Len() int {
	return len(h.fields)
}

// Reset truncates the list, keeping its backing array.
func (h *Headers) Reset() {
	clear(h.fields)
	h.fields = h.fields[:0]
}
