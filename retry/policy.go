package retry

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConnectPolicy retries database connection attempts. Refused, timed-out and
// unreachable connections are transient; anything the server actually
// answered (auth failures, missing databases) and TLS or URL problems
// propagate immediately.
func ConnectPolicy() Policy {
	return Policy{
		Name:        "connect",
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		Retryable:   TransientConnectError,
	}
}

// ProcessPolicy retries external client tools (pg_dump, psql). Classification
// is substring-based over the captured stderr and exit text; any other
// non-zero exit is fatal with the full output attached.
func ProcessPolicy() Policy {
	return Policy{
		Name:        "process",
		MaxAttempts: 3,
		Backoff:     []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		Retryable:   TransientProcessError,
	}
}

// TransientConnectError reports whether a connection failure is worth
// retrying.
func TransientConnectError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// the server answered, so the network is fine
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	return hasTransientMarker(err.Error())
}

// TransientProcessError reports whether an external tool failure looks like a
// network hiccup rather than a real error.
func TransientProcessError(err error) bool {
	if err == nil {
		return false
	}
	return hasTransientMarker(err.Error())
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"timeout expired",
	"could not connect",
	"host unreachable",
	"no route to host",
	"network is unreachable",
	"server closed the connection unexpectedly",
}

func hasTransientMarker(text string) bool {
	text = strings.ToLower(text)
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
