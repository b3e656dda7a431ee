package dpf

import "errors"

// Error kinds reported by this package. Call sites wrap them with context via
// fmt.Errorf("...: %w", ...), so callers match with errors.Is.
var (
	// ErrInvalidArgument reports a caller mistake: malformed parameter
	// lists, out-of-domain alpha or beta values, oversized or unknown
	// prefixes, mismatched output widths, or keys whose layout does not
	// fit the parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnimplemented reports an element bitsize outside the supported
	// set {1, 2, 4, 8, 16, 32, 64, 128}.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrInternal reports a failure of a cryptographic backend (cipher
	// construction or the random source).
	ErrInternal = errors.New("internal")

	// ErrFailedPrecondition reports an EvaluateNext call that does not fit
	// the context's state: non-empty prefixes on the first call, or a call
	// after the last hierarchy level was consumed.
	ErrFailedPrecondition = errors.New("failed precondition")
)
