package types

import "errors"

// Error kinds for the execution engine. Expected runtime conditions
// (ErrNotReady, ErrCapability, ErrInsufficientFunds) are handled locally by
// the execution handler: early return plus a diagnostic event, never an
// abort, because the condition is already recorded and an abort would only
// forfeit the invocation fee.
var (
	// ErrValidation marks bad constructor arguments or an illegal state
	// transition. Fatal to the call that caused it, never silently clamped.
	ErrValidation = errors.New("validation failed")

	// ErrNotReady marks a plan that is not Active, not due yet, or already
	// at its execution cap.
	ErrNotReady = errors.New("plan not ready")

	// ErrCapability marks a missing or revoked authorization token.
	ErrCapability = errors.New("capability invalid")

	// ErrInsufficientFunds marks a source or fee balance too low to proceed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPrecision marks an amount that floors to zero after conversion to
	// the foreign precision. Rejected before any transfer.
	ErrPrecision = errors.New("amount floors to zero in foreign precision")

	// ErrSwapExecution marks a swap where both the primary and the fallback
	// router call failed. No partial transfer took place.
	ErrSwapExecution = errors.New("swap execution failed")

	// ErrStranded marks a swap whose input was consumed but whose output
	// could not be brought back to the local ledger. The source balance must
	// NOT be restored: the value exists foreign-side and restoring the input
	// would count it twice. Manual repair only.
	ErrStranded = errors.New("swap output stranded in foreign environment")

	// ErrRouting marks an asset type the registry could not resolve.
	ErrRouting = errors.New("asset not routable")

	// ErrDivisionByZero marks a price computation with a zero input amount.
	ErrDivisionByZero = errors.New("division by zero")
)
