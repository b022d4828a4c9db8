package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query or write failure
	ExitCommandError = 2 // Command error (bad flags, unreadable config or input)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// printResult writes data as JSON or text as a plain line
func printResult(w io.Writer, format string, data any, text string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(data)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// jsonQuad is the JSON shape of a quad; terms use N-Quads syntax
type jsonQuad struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Graph     string `json:"graph"`
}

func toJSONQuad(q *rdf.Quad) jsonQuad {
	return jsonQuad{
		Subject:   q.Subject.String(),
		Predicate: q.Predicate.String(),
		Object:    q.Object.String(),
		Graph:     q.Graph.String(),
	}
}

func roleNames(roles []rdf.Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return names
}
