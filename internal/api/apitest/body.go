package apitest

import (
	"bytes"
	"io"
	"net/http"
)

// readBody reads the request body and puts it back so later handlers can
// read it again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}
