package lowerregs

import "errors"

// These report IR that violates the pass's preconditions. They abort the
// current compilation unit; callers match them with errors.Is.
var (
	// ErrMalformedDeref: a chain that does not end at a variable, or whose
	// leaf is not a vector or scalar
	ErrMalformedDeref = errors.New("malformed deref chain")

	// ErrIllegalLocalCopy: copy_deref on local storage; copies must be split
	// into load/store pairs first
	ErrIllegalLocalCopy = errors.New("copy_deref on local storage")

	// ErrUnfoldedOffset: a nonzero base offset left beside a dynamic index
	ErrUnfoldedOffset = errors.New("base offset not folded into indirect index")

	// ErrConstantInitializer: local variable with an initializer that was
	// not lowered to stores
	ErrConstantInitializer = errors.New("local variable has a constant initializer")
)
