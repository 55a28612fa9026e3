// Package result provides the success/failure envelope returned by every
// expense handler. Expected business outcomes travel as a Failure; only
// infrastructure faults are returned as Go errors.
package result

// Kind classifies a failure so transports can pick a status code without
// parsing the message.
type Kind string

const (
	NotFound Kind = "not_found"
	Invalid  Kind = "invalid"
)

// Result is either a Success carrying a value or a Failure carrying a short,
// user-safe description.
type Result[T any] struct {
	value T
	kind  Kind
	msg   string
	ok    bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Fail builds a failure of the given kind.
func Fail[T any](kind Kind, msg string) Result[T] {
	return Result[T]{kind: kind, msg: msg}
}

func (r Result[T]) IsSuccess() bool { return r.ok }
func (r Result[T]) IsFailure() bool { return !r.ok }

// Value returns the payload; it is the zero value for a Failure.
func (r Result[T]) Value() T { return r.value }

// Kind returns the failure kind, empty for a Success.
func (r Result[T]) Kind() Kind { return r.kind }

// Error returns the failure description, empty for a Success.
func (r Result[T]) Error() string { return r.msg }
