package ignis

import "testing"

func TestHeaders(t *testing.T) {
	var h Headers
	h.Add("Content-Type", "text/plain")
	h.Add("Set-Cookie", "a=1")
	h.Add("set-cookie", "b=2")
	h.Add("X-Other", "x")

	if got := h.Get("CONTENT-TYPE"); got != "text/plain" {
		t.Errorf("Get = %q", got)
	}
	if got := h.Values("Set-Cookie"); len(got) != 2 {
		t.Errorf("Values = %v", got)
	}

	h.Set("set-cookie", "c=3")
	if got := h.Values("set-cookie"); len(got) != 1 || got[0] != "c=3" {
		t.Errorf("after Set, Values = %v", got)
	}
	if all := h.All(); len(all) != 3 || all[1][0] != "set-cookie" || all[2][0] != "x-other" {
		t.Errorf("Set must keep the first position: %v", all)
	}

	h.Del("X-OTHER")
	if h.Has("x-other") || h.Len() != 2 {
		t.Errorf("after Del: %v", h.All())
	}

	h.Set("New", "v")
	if h.All()[h.Len()-1][0] != "new" {
		t.Error("Set of a new name must append")
	}

	h.Reset()
	if h.Len() != 0 || h.Get("content-type") != "" {
		t.Error("Reset left fields")
	}
}
