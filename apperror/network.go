package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// FromNetwork maps a transport failure from an RPC or relay call to a NetworkError.
// Errors that already carry a kind are returned unchanged; nil maps to nil.
func FromNetwork(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae
	}

	switch {
	case isConnectionRefused(err):
		return NewNetwork(fmt.Sprintf("%s: endpoint unavailable (connection refused)", op), err)
	case isTimeout(err):
		return NewNetwork(fmt.Sprintf("%s: request timeout", op), err)
	case isDNS(err):
		return NewNetwork(fmt.Sprintf("%s: endpoint host could not be resolved", op), err)
	default:
		return NewNetwork(fmt.Sprintf("%s: endpoint unreachable", op), err)
	}
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func isDNS(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
