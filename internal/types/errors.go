package types

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Sentinel errors used for flow control. Callers match with errors.Is.
var (
	// ErrAuthenticationUnavailable means the secondary keypair has not been
	// derived yet. Precondition failure, not retryable.
	ErrAuthenticationUnavailable = errors.New("secondary keypair not derived")

	// ErrProofNotReady is the expected transient state while a withdrawal
	// waits for batch submission. Drives polling, never surfaced as a failure.
	ErrProofNotReady = errors.New("proof not ready")

	// ErrAlreadyProcessed means the relay or chain reports the withdrawal as
	// claimed. Treated as success everywhere.
	ErrAlreadyProcessed = errors.New("withdrawal already processed")

	// ErrPollExpired means the poll attempt budget ran out. The batch record
	// stays, polling can be re-triggered manually.
	ErrPollExpired = errors.New("proof polling attempt budget exhausted")
)

// ValidationError covers bad user input: non-positive amount, malformed
// address. Surfaced immediately, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RequestRejectedError is a relay decline of a signed request: insufficient
// balance, bad signature, stale nonce. Terminal for that attempt, the caller
// must build a fresh request.
type RequestRejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("relay rejected request (status %d): %s", e.StatusCode, e.Reason)
}

// RevertKind classifies an on-chain claim failure so the caller knows whether
// to resume, top up, or escalate to manual recovery.
type RevertKind int

const (
	RevertUnknown RevertKind = iota
	RevertUserRejected
	RevertInsufficientFunds
	RevertInvalidProof
	RevertAlreadyProcessed
)

func (k RevertKind) String() string {
	switch k {
	case RevertUserRejected:
		return "user_rejected"
	case RevertInsufficientFunds:
		return "insufficient_funds"
	case RevertInvalidProof:
		return "invalid_proof"
	case RevertAlreadyProcessed:
		return "already_processed"
	default:
		return "unknown"
	}
}

// ClaimRevertedError wraps an on-chain claim failure. The batch record is
// preserved by the orchestrator so the claim can be retried.
type ClaimRevertedError struct {
	Kind RevertKind
	Err  error
}

func (e *ClaimRevertedError) Error() string {
	return fmt.Sprintf("claim reverted (%s): %v", e.Kind, e.Err)
}

func (e *ClaimRevertedError) Unwrap() error {
	return e.Err
}

// WrapNetworkError tags a transport-level failure with a stack trace. The
// caller retries at the next poll or user action, never in a tight loop.
func WrapNetworkError(err error, op string) error {
	if err == nil {
		return nil
	}
	return goerrors.WrapPrefix(err, fmt.Sprintf("relay unreachable during %s", op), 1)
}

// IsNetworkError reports whether err came through WrapNetworkError.
func IsNetworkError(err error) bool {
	var ge *goerrors.Error
	return errors.As(err, &ge)
}
