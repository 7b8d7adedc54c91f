package proxy

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routeIDs reads the :userID and :apiID chi URL parameters the router binds
// the protected proxy route to.
func routeIDs(r *http.Request) (userID, apiID string) {
	return chi.URLParam(r, "userID"), chi.URLParam(r, "apiID")
}

// newReader wraps body as an io.Reader suitable for http.NewRequestWithContext,
// returning nil for an empty body so no Content-Length: 0 body is sent
// where none was intended.
func newReader(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return bytes.NewReader(body)
}
