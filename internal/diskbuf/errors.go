package diskbuf

import "fmt"

// Kind classifies a buffer error so callers can decide whether to retry,
// surface it to an operator, or treat the buffer as permanently wedged.
type Kind int

const (
	// KindLockHeld means another process already holds the buffer's
	// exclusive lock file. Fatal to the calling process: a buffer
	// directory may only be opened by one process at a time.
	KindLockHeld Kind = iota
	// KindLedgerIO covers failures reading, writing, or mapping the
	// ledger file itself. Treated as fatal since the buffer cannot make
	// progress without a readable ledger.
	KindLedgerIO
	// KindFailedToDeserialize means a record's framing or checksums
	// didn't validate, or the ledger file's magic or version was not
	// recognized on open. Non-fatal for the writer; for the reader it
	// marks the point where recovery must stop trusting the segment; on
	// ledger open it is fatal.
	KindFailedToDeserialize
	// KindRecordTooLarge means a caller tried to write a payload bigger
	// than a single segment could ever hold. Non-fatal, rejects the one
	// write.
	KindRecordTooLarge
	// KindBufferFull means the configured byte budget or file-id ring
	// is exhausted and the writer's WhenFull policy is non-blocking.
	// Non-fatal, caller may retry later.
	KindBufferFull
	// KindFramingError covers malformed on-disk record framing
	// encountered outside of normal corruption recovery.
	KindFramingError
	// KindSegmentIO covers failures reading, writing, or unlinking a
	// segment data file.
	KindSegmentIO
	// KindCancelled means the caller's context was done while the
	// operation was blocked (e.g. waiting for backpressure to clear).
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindLockHeld:
		return "lock_held"
	case KindLedgerIO:
		return "ledger_io"
	case KindFailedToDeserialize:
		return "failed_to_deserialize"
	case KindRecordTooLarge:
		return "record_too_large"
	case KindBufferFull:
		return "buffer_full"
	case KindFramingError:
		return "framing_error"
	case KindSegmentIO:
		return "segment_io"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is the typed error diskbuf returns. Code wraps errors from the
// standard library with %w the same way the rest of this module does, so
// callers can still errors.Is/errors.As through to the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var buffErr *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			buffErr = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return buffErr != nil && buffErr.Kind == kind
}
