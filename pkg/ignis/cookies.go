package ignis

import "net/http"

const cookieJarKey = "ignis.cookies.out"

// Cookies returns a middleware that parses the Cookie header into Request.Cookies
// and writes cookies queued with SetCookie as Set-Cookie headers right before the
// response head is sent.
func Cookies() Middleware {
	return NewMiddleware("cookies", Version, func(ctx *Context, next Next) error {
		for _, line := range ctx.Request.Headers.Values("cookie") {
			parsed, err := http.ParseCookie(line)
			if err != nil {
				continue
			}
			ctx.Request.Cookies = append(ctx.Request.Cookies, parsed...)
		}

		ctx.Response.OnEnd(func(res *Response) {
			v, ok := ctx.Get(cookieJarKey)
			if !ok {
				return
			}
			for _, c := range v.([]*http.Cookie) {
				// String returns "" for a cookie with an invalid name.
				if v := c.String(); v != "" {
					res.AddHeader("Set-Cookie", v)
				}
			}
		})
		return next()
	})
}

// SetCookie queues c for the response. It requires the Cookies middleware.
func SetCookie(ctx *Context, c *http.Cookie) {
	var jar []*http.Cookie
	if v, ok := ctx.Get(cookieJarKey); ok {
		jar = v.([]*http.Cookie)
	}
	ctx.Set(cookieJarKey, append(jar, c))
}
