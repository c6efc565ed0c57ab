package usecase

import (
	"context"
	"errors"
	"net"
	"syscall"

	"ocr-processing-coordinator/internal/domain"
)

type FailureClass int

const (
	// FailureTransient failures are redelivered by the job queue's own
	// retry/backoff mechanism.
	FailureTransient FailureClass = iota
	// FailurePermanent failures are terminal: the document is marked failed
	// and never retried automatically.
	FailurePermanent
)

func (c FailureClass) String() string {
	if c == FailureTransient {
		return "transient"
	}
	return "permanent"
}

// Classify decides whether a dispatch failure is worth retrying. Network
// timeouts, refused connections and upstream 5xx responses are transient;
// anything the engine rejected outright (4xx: malformed document, unsupported
// format, validation failure) is permanent.
//
// Pure function, no state; used only to route retry decisions.
func Classify(err error) FailureClass {
	if err == nil {
		return FailurePermanent
	}

	var statusErr *domain.UpstreamStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return FailureTransient
		}
		return FailurePermanent
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return FailureTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureTransient
	}

	return FailurePermanent
}
