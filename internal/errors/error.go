package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/vango-dev/reactor/pkg/reactor"
)

// Category represents the area an error comes from.
type Category string

const (
	CategoryEngine   Category = "engine"
	CategoryLoop     Category = "loop"
	CategoryPersist  Category = "persist"
	CategoryConfig   Category = "config"
	CategoryDevtools Category = "devtools"
	CategoryCLI      Category = "cli"
)

// Location represents a position in a file, usually a config file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// ReactorError is a structured error with a code, an optional location
// and a hint on how to fix it.
type ReactorError struct {
	// Code is a unique error identifier (e.g., "R003").
	Code string

	// Category is the area the error belongs to.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Node names the graph node involved, if any.
	Node string

	// Location points into the file that caused the error, if any.
	Location *Location

	// Context contains the lines surrounding Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows the correct approach.
	Example string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *ReactorError) Error() string {
	msg := e.Message
	if e.Node != "" {
		msg += " (" + e.Node + ")"
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *ReactorError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position and the lines around it.
func (e *ReactorError) WithLocation(file string, line, column int) *ReactorError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithNode records the graph node involved.
func (e *ReactorError) WithNode(name string) *ReactorError {
	e.Node = name
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *ReactorError) WithSuggestion(s string) *ReactorError {
	e.Suggestion = s
	return e
}

// WithExample adds a code example to the error.
func (e *ReactorError) WithExample(ex string) *ReactorError {
	e.Example = ex
	return e
}

// WithDetail replaces the detailed explanation.
func (e *ReactorError) WithDetail(d string) *ReactorError {
	e.Detail = d
	return e
}

// WithContext adds custom context lines to the error.
func (e *ReactorError) WithContext(lines []string) *ReactorError {
	e.Context = lines
	return e
}

// Wrap wraps another error.
func (e *ReactorError) Wrap(err error) *ReactorError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a ReactorError from a registered error code.
func New(code string) *ReactorError {
	template, ok := registry[code]
	if !ok {
		return &ReactorError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &ReactorError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new ReactorError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *ReactorError {
	return &ReactorError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a ReactorError.
func FromError(err error, code string) *ReactorError {
	if err == nil {
		return nil
	}
	var re *ReactorError
	if stderrors.As(err, &re) {
		return re
	}
	return New(code).Wrap(err)
}

// engineCodes maps engine sentinel errors to their codes, most specific
// first.
var engineCodes = []struct {
	err  error
	code string
}{
	{reactor.ErrWriteInDerivation, "R001"},
	{reactor.ErrOutsideBatch, "R002"},
	{reactor.ErrCycle, "R003"},
	{reactor.ErrDisposed, "R004"},
	{reactor.ErrFlushLimit, "R005"},
	{reactor.ErrLoopClosed, "R020"},
	{reactor.ErrLoopFull, "R021"},
	{reactor.ErrPoolClosed, "R022"},
}

// FromEngine converts an error produced by package reactor into a
// ReactorError. The innermost failing node is recorded, so a derivation
// failing because of another derivation names the one that actually
// failed. Errors it does not recognize become R099.
func FromEngine(err error) *ReactorError {
	if err == nil {
		return nil
	}
	var re *ReactorError
	if stderrors.As(err, &re) {
		return re
	}

	code := ""
	for _, c := range engineCodes {
		if stderrors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	if code == "" {
		var pe *reactor.PanicError
		var ee *reactor.EvalError
		switch {
		case stderrors.As(err, &pe):
			code = "R007"
		case stderrors.As(err, &ee):
			code = "R006"
		default:
			code = "R099"
		}
	}

	out := New(code).Wrap(err)
	if node := innermostNode(err); node != "" {
		out.WithNode(node)
	}
	return out
}

func innermostNode(err error) string {
	name := ""
	for err != nil {
		if ee, ok := err.(*reactor.EvalError); ok {
			name = ee.Name
			if name == "" {
				name = "#" + ee.Node.String()
			}
		}
		err = stderrors.Unwrap(err)
	}
	return name
}
