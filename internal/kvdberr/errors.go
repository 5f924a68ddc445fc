// Package kvdberr defines the closed set of error kinds the core pipeline
// can produce, so executors and the server context can map a failure to a
// wire response without sniffing error strings.
package kvdberr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories enumerated in the error handling
// design: CONFIG, WIRE, UNKNOWN_COMMAND, NOT_READY, NO_SUCH_DB, DB_EXISTS,
// ARG_INVALID, BATCH_STATE, BATCH_SIZE_MISMATCH, BATCH_TOO_LARGE, ENGINE,
// WAL, CLUSTER_MISMATCH, INTERNAL, plus ADMIN_ONLY (an admin command sent
// on the service port) and INVALID_NAME (a malformed database name).
type Kind string

const (
	Config             Kind = "CONFIG"
	Wire               Kind = "WIRE"
	UnknownCommand     Kind = "UNKNOWN_COMMAND"
	NotReady           Kind = "NOT_READY"
	NoSuchDB           Kind = "NO_SUCH_DB"
	DBExists           Kind = "DB_EXISTS"
	ArgInvalid         Kind = "ARG_INVALID"
	BatchState         Kind = "BATCH_STATE"
	BatchSizeMismatch  Kind = "BATCH_SIZE_MISMATCH"
	BatchTooLarge      Kind = "BATCH_TOO_LARGE"
	Engine             Kind = "ENGINE"
	WAL                Kind = "WAL"
	ClusterMismatch    Kind = "CLUSTER_MISMATCH"
	Internal           Kind = "INTERNAL"
	AdminOnly          Kind = "ADMIN_ONLY"
	InvalidName        Kind = "INVALID_NAME"
)

// Error is a typed error carrying one of the Kind values above plus a
// human-readable message. It is never wrapped further by executors; the
// dbserver layer turns it directly into a wire.Response.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an *Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise returns Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
