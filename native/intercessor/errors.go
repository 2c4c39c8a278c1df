package intercessor

import "errors"

// Error taxonomy surfaced by the settlement entry points. Every failure
// aborts the whole operation with no state mutation.
var (
	// ErrUnauthorized is returned when the caller or a referenced
	// counterparty has not been admitted, or when a non-authority attempts
	// an administrative operation.
	ErrUnauthorized = errors.New("intercessor: unauthorized")

	// ErrDuplicatePending is returned when a trade identifier is
	// re-registered while an entry for it is already pending.
	ErrDuplicatePending = errors.New("intercessor: trade already pending")

	// ErrTermsMismatch is returned when the second submission disagrees
	// with the stored intent.
	ErrTermsMismatch = errors.New("intercessor: submitted terms do not match pending trade")

	// ErrSettlementFailed is returned when an underlying asset movement
	// could not complete. The ledger entry remains pending for retry.
	ErrSettlementFailed = errors.New("intercessor: settlement could not complete")

	// ErrIntentNotFound is returned when an operation references a trade
	// identifier with no pending entry.
	ErrIntentNotFound = errors.New("intercessor: trade not found")
)

var (
	errNilState  = errors.New("intercessor: state not configured")
	errNilTokens = errors.New("intercessor: token adapter not configured")
	errNilNative = errors.New("intercessor: native adapter not configured")
)
