// Package cli maps command errors to exit codes and user-facing output.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Exit codes. Scripts driving splot retry on ExitNetwork.
const (
	ExitOK         = 0
	ExitInternal   = 1
	ExitUsage      = 2
	ExitNotFound   = 3
	ExitPermission = 4
	ExitNetwork    = 5
)

// Error is a command error with an exit code and a category.
type Error struct {
	Code      int    `json:"exit_code"`
	Kind      string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Usagef reports invalid flags or arguments.
func Usagef(format string, args ...any) *Error {
	return &Error{Code: ExitUsage, Kind: "invalid_args", Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps err for a missing file or object.
func NotFound(err error) *Error {
	return &Error{Code: ExitNotFound, Kind: "not_found", Message: err.Error(), Err: err}
}

// Permission wraps err for denied access.
func Permission(err error) *Error {
	return &Error{Code: ExitPermission, Kind: "permission", Message: err.Error(), Err: err}
}

// Network wraps err for an unreachable or failing server.
func Network(err error) *Error {
	return &Error{Code: ExitNetwork, Kind: "network", Message: err.Error(), Err: err, Retryable: true}
}

// Internal wraps any other failure.
func Internal(err error) *Error {
	return &Error{Code: ExitInternal, Kind: "internal", Message: err.Error(), Err: err}
}

// Classify returns err as an *Error, inferring the category from the
// wrapped cause when err is not one already. It returns nil for nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NotFound(err)
	case errors.Is(err, os.ErrPermission):
		return Permission(err)
	case errors.As(err, &netErr):
		return Network(err)
	}
	return Internal(err)
}

// ExitCode returns the exit code for err: ExitOK for nil.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return Classify(err).Code
}

// FormatError writes err to w, as one JSON object in JSON mode or as
// "error: <message>" otherwise.
func FormatError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		data, _ := json.Marshal(Classify(err))
		_, _ = fmt.Fprintln(w, string(data))
		return
	}
	_, _ = fmt.Fprintf(w, "error: %v\n", err)
}
