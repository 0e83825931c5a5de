package script

import "fmt"

// ModuleNotFoundError reports that no module with the configured name
// exists in the search path.
type ModuleNotFoundError struct {
	Path string
	Name string
	Err  error
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("script module %q not found in %q: %v", e.Name, e.Path, e.Err)
}

func (e *ModuleNotFoundError) Unwrap() error { return e.Err }

// EntryPointMissingError reports that the module does not export a
// required entry point.
type EntryPointMissingError struct {
	Path  string
	Name  string
	Entry string
}

func (e *EntryPointMissingError) Error() string {
	return fmt.Sprintf("script module %q (in %q) does not export %q", e.Name, e.Path, e.Entry)
}

// SignatureMismatchError reports that a resolved entry point does not
// accept the argument count negotiated at bind time.
type SignatureMismatchError struct {
	Path  string
	Name  string
	Entry string
	Want  int
	Got   int
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("script module %q (in %q): entry point %q expects %d arguments, found %d",
		e.Name, e.Path, e.Entry, e.Want, e.Got)
}

// ExecutionError reports a failure raised by foreign code during an
// invocation. Target-buffer writes made before the failure remain in
// place; an invocation has at-least-partial effect, it is not atomic.
type ExecutionError struct {
	Path  string
	Name  string
	Entry string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("script module %q (in %q): %s failed: %v", e.Name, e.Path, e.Entry, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
