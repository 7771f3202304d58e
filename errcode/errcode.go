package errcode

// Code is a stable, log-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Capacity: the slot does not exist.
	CapacityExceeded Code = "capacity_exceeded"
	ModuleTableFull  Code = "module_table_full"

	// Output table.
	SlotOccupied      Code = "slot_occupied"
	IndexOutOfRange   Code = "index_out_of_range"
	InvalidDescriptor Code = "invalid_descriptor"

	// Provisioning.
	NoResource Code = "no_resource"
	Degraded   Code = "degraded"

	// Programmer errors.
	AlreadyAttached Code = "already_attached"
	AlreadyInit     Code = "already_initialized"
	UnknownKind     Code = "unknown_kind"
	InvalidParams   Code = "invalid_params"

	// Interfaces.
	InterfaceInvalid Code = "interface_invalid"
	NotBound         Code = "not_bound"

	// Drivers.
	Unsupported Code = "unsupported"
	Timeout     Code = "timeout"
	IOError     Code = "io_error"

	Error Code = "error" // generic fallback
)

// E is the wrapper used when context and a cause need to travel with a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.X) match a wrapped code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E; a nil cause is allowed.
func Wrap(c Code, op string, err error) *E { return &E{C: c, Op: op, Err: err} }

// Of extracts a Code from an error, defaulting to Error. It follows both
// single and joined wraps and returns the first code that is not Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		if c := x.Code(); c != Error {
			return c
		}
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			return Of(inner)
		}
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if c := Of(inner); c != Error && c != OK {
				return c
			}
		}
	}
	return Error
}
