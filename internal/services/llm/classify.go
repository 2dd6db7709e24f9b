package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"terport/internal/terport"
)

// Classify maps a completion error onto the attempt error kinds recorded in
// generation history. A nil error yields an empty kind.
func Classify(err error) terport.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return terport.ErrorKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return terport.ErrorKindTimeout
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return terport.ErrorKindRateLimited
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusGatewayTimeout:
			return terport.ErrorKindTimeout
		default:
			return terport.ErrorKindHTTPStatus
		}
	}

	var emptyErr *EmptyContentError
	if errors.As(err, &emptyErr) {
		return terport.ErrorKindEmpty
	}

	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return terport.ErrorKindMalformed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return terport.ErrorKindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return terport.ErrorKindTimeout
	}
	return terport.ErrorKindTransport
}
