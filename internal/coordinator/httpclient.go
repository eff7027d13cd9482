package coordinator

import (
	"time"

	"resty.dev/v3"
)

const defaultFetchTimeout = 30 * time.Second

// NewHTTPClient creates the outbound HTTP client with the per-request fetch
// deadline. Automatic retries are disabled on purpose: a failed attempt is
// terminal for that lookup, and a retry is an explicit re-submit.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/html")
}
