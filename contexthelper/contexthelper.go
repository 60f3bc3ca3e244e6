package contexthelper

import "context"

// CheckCancellation returns the context error if the context is already
// done, otherwise nil. Task handlers call this on entry so cancelled work
// never starts.
func CheckCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
