package replica

import (
	"errors"
	"fmt"
)

// MergeCode classifies why a delta was rejected.
type MergeCode string

const (
	// MergeCodeMalformed marks a delta that failed to decode or carried
	// structurally invalid entries (zero stamps, empty IDs).
	MergeCodeMalformed MergeCode = "malformed"

	// MergeCodeVersion marks a delta whose format version this build does
	// not understand.
	MergeCodeVersion MergeCode = "unsupported_version"
)

// MergeError reports a rejected delta. The document it was offered to is
// unchanged; rejection is always all-or-nothing.
type MergeError struct {
	Code   MergeCode
	Detail string
	Err    error
}

func (e *MergeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("merge rejected (%s): %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("merge rejected (%s): %s", e.Code, e.Detail)
}

func (e *MergeError) Unwrap() error { return e.Err }

// IsMergeError reports whether err (or anything it wraps) is a
// MergeError.
func IsMergeError(err error) bool {
	var me *MergeError
	return errors.As(err, &me)
}

func malformed(format string, args ...any) *MergeError {
	return &MergeError{Code: MergeCodeMalformed, Detail: fmt.Sprintf(format, args...)}
}
