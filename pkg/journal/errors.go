package journal

import (
	"errors"
	"fmt"
)

var (
	ErrNoSuchEntry     = errors.New("journal: no such entry")
	ErrEntryTooLarge   = errors.New("journal: entry too large")
	ErrEmptyEntry      = errors.New("journal: entry encodes to zero bytes")
	ErrSegmentFull     = errors.New("journal: segment full")
	ErrIndexOutOfRange = errors.New("journal: index out of range")
	ErrIndexMismatch   = errors.New("journal: index mismatch")
	ErrStorage         = errors.New("journal: storage error")
	ErrDecode          = errors.New("journal: decode failed")
	ErrClosed          = errors.New("journal: closed")
)

// RecoveryError reports on-disk state the journal refuses to open.
// It matches ErrStorage with errors.Is.
type RecoveryError struct {
	Path   string
	Reason string
	Err    error
}

func newRecoveryError(path string, err error, format string, args ...interface{}) *RecoveryError {
	return &RecoveryError{Path: path, Reason: fmt.Sprintf(format, args...), Err: err}
}

func (e *RecoveryError) Error() string {
	msg := "journal recovery failed"
	if e.Path != "" {
		msg += " for " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecoveryError) Is(target error) bool {
	return target == ErrStorage
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}
