package clients

import (
	"net/http"
	"time"
)

type HTTP struct{ c *http.Client }

func NewHTTP() *HTTP { return &HTTP{c: &http.Client{Timeout: 60 * time.Second}} }

// NewHTTPWithClient wraps an existing client, e.g. one with a longer timeout
// for large uploads.
func NewHTTPWithClient(c *http.Client) *HTTP { return &HTTP{c: c} }
