package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// ErrStatus is wrapped by StatusError so callers can test with errors.Is.
var ErrStatus = errors.New("httpclient: unexpected status")

// StatusError reports a response with an unexpected status code.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: %s %s: status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Retryable reports whether err from a request is worth another try: a
// temporary status or a transport timeout. Context errors never are.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// CheckStatus returns a *StatusError unless resp has one of the accepted
// codes. It drains and closes the body on error.
func CheckStatus(resp *http.Response, accepted ...int) error {
	for _, c := range accepted {
		if resp.StatusCode == c {
			return nil
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.Redacted(),
		Code:   resp.StatusCode,
	}
}
