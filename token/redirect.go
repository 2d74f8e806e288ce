package token

import "net/url"

// StripAuthParams returns the request path and query with the OAuth callback
// parameters removed, so a reload after the callback does not repeat the
// code exchange.
func StripAuthParams(u *url.URL) string {
	q := u.Query()
	for _, param := range []string{"code", "state", "error", "error_description"} {
		q.Del(param)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if encoded := q.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}
