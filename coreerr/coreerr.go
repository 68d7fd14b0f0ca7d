// Package coreerr defines the stable error taxonomy shared by every
// public operation in this module.
package coreerr

import "fmt"

// Kind is the stable ordinal enumeration of failure classes. Values
// never change meaning across releases; new kinds are only ever
// appended.
type Kind uint8

const (
	Ok Kind = iota
	Invalid
	Memory
	State
	Budget
	Conservation
	Witness
	Destroyed
)

// String renders the fixed ASCII phrase for a kind.
func (k Kind) String() string {
	switch k {
	case Ok:
		return "Operation completed successfully"
	case Invalid:
		return "Invalid function argument"
	case Memory:
		return "Memory allocation failed"
	case State:
		return "Invalid domain state transition"
	case Budget:
		return "Insufficient budget for operation"
	case Conservation:
		return "Conservation law violated"
	case Witness:
		return "Witness verification failed"
	case Destroyed:
		return "Domain has been destroyed"
	default:
		return "Unknown error kind"
	}
}

// Error binds a Kind to a human-readable context message. It is the
// concrete error type returned by every fallible operation in this
// module; callers recover the Kind with errors.As or the Of helper.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// New builds an *Error for op with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Of extracts the Kind carried by err, or Ok if err is nil, or Invalid
// if err does not carry a Kind (defensive default for foreign errors
// crossing this module's boundary).
func Of(err error) Kind {
	if err == nil {
		return Ok
	}
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return Invalid
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
