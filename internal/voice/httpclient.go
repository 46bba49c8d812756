package voice

import (
	"net/http"
	"time"
)

// NewPooledHTTPClient creates an http.Client with connection pooling sized
// for one backend. No header deadline: the non-streaming completion
// backend sends nothing until generation finishes, so the only bound is
// the overall per-call timeout.
func NewPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        poolSize,
			MaxIdleConnsPerHost: poolSize,
			IdleConnTimeout:     2 * time.Minute,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
