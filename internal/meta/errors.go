package meta

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	api "nyxmeta/pkg/api"
)

var (
	// ErrClusterMismatch indicates the header names a different cluster.
	ErrClusterMismatch = errors.New("meta: cluster id mismatch")
	// ErrNotLeader indicates this replica is not the control-plane leader.
	ErrNotLeader = errors.New("meta: not leader")
	// ErrInvariantViolation indicates a report broke a schema invariant.
	ErrInvariantViolation = errors.New("meta: invariant violation")
	// ErrNoLeaderKnown indicates no leader fact has been established.
	ErrNoLeaderKnown = errors.New("meta: no leader known")
	// ErrStreamFailure indicates the heartbeat transport failed.
	ErrStreamFailure = errors.New("meta: stream failure")
	// ErrSessionClosed is returned when a closed session is handed a report.
	ErrSessionClosed = errors.New("meta: session closed")
)

func violationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

func clusterMismatch(got, want uint64) error {
	return fmt.Errorf("%w: request for cluster %d, serving cluster %d", ErrClusterMismatch, got, want)
}

// IsNotLeaderError reports whether err means the answering replica is not leader.
func IsNotLeaderError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotLeader) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.FailedPrecondition
	}
	return false
}

// IsNoLeaderKnownError reports whether err means no leader could be resolved.
func IsNoLeaderKnownError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoLeaderKnown) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.Unavailable
	}
	return false
}

// ErrorCode maps err onto the wire error code.
func ErrorCode(err error) api.ErrorCode {
	switch {
	case err == nil:
		return api.ErrorCode_OK
	case errors.Is(err, ErrClusterMismatch):
		return api.ErrorCode_CLUSTER_MISMATCH
	case errors.Is(err, ErrNotLeader):
		return api.ErrorCode_NOT_LEADER
	case errors.Is(err, ErrInvariantViolation):
		return api.ErrorCode_INVARIANT_VIOLATION
	case errors.Is(err, ErrNoLeaderKnown):
		return api.ErrorCode_NO_LEADER_KNOWN
	default:
		return api.ErrorCode_INTERNAL
	}
}

// ErrorFromHeader turns a response header back into an error wrapping the
// matching sentinel, or nil when the header carries none.
func ErrorFromHeader(h *api.ResponseHeader) error {
	code := h.GetCode()
	if code == api.ErrorCode_OK {
		return nil
	}
	var sentinel error
	switch code {
	case api.ErrorCode_CLUSTER_MISMATCH:
		sentinel = ErrClusterMismatch
	case api.ErrorCode_NOT_LEADER:
		sentinel = ErrNotLeader
	case api.ErrorCode_INVARIANT_VIOLATION:
		sentinel = ErrInvariantViolation
	case api.ErrorCode_NO_LEADER_KNOWN:
		sentinel = ErrNoLeaderKnown
	default:
		return fmt.Errorf("meta: remote error %s: %s", code, h.GetMessage())
	}
	if msg := h.GetMessage(); msg != "" && msg != sentinel.Error() {
		return fmt.Errorf("%w (remote: %s)", sentinel, msg)
	}
	return sentinel
}
