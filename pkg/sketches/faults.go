package sketches

import (
	"errors"
	"fmt"
)

// FaultKind classifies a Fault.
type FaultKind string

const (
	// FaultConfig marks invalid sketch parameters (zero hashes, zero buckets, bad compactor widths).
	FaultConfig FaultKind = "config"
	// FaultRange marks an index outside a fixed-capacity structure.
	FaultRange FaultKind = "range"
	// FaultInternal marks a broken internal invariant. It must never happen for valid inputs.
	FaultInternal FaultKind = "internal"
)

// Fault is the only error type produced by this package. Config faults are
// returned by constructors; range and internal faults are raised with panic,
// the same way an out-of-range slice index is.
type Fault struct {
	Kind    FaultKind
	Op      string
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("sketches: %s fault in %s: %s", f.Kind, f.Op, f.Message)
}

func configFault(op, format string, args ...any) *Fault {
	return &Fault{Kind: FaultConfig, Op: op, Message: fmt.Sprintf(format, args...)}
}

func rangeFault(op string, i, limit int) *Fault {
	return &Fault{Kind: FaultRange, Op: op, Message: fmt.Sprintf("index %d out of range [0, %d)", i, limit)}
}

// IsFault reports whether err is (or wraps) a Fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	if !errors.As(err, &f) {
		return false
	}
	return f.Kind == kind
}
