// Package ai defines the narrow contract between the pipeline and a language
// model: a prompt goes in, a parsed JSON object or an *Error comes out.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/resume-matcher/internal/fields"
)

// ErrorType tags every error produced by a Gateway.
const ErrorType = "llm_error"

const (
	MsgNoCredential = "no credential available"
	MsgNonJSON      = "non-JSON response"
)

// Request is a single model call. An empty APIKey selects the process-wide
// default credential, an empty Model the gateway default.
type Request struct {
	Prompt string
	Model  string
	APIKey string
}

// Gateway sends prompts to a model and returns the parsed JSON object.
// Implementations return *Error for every failure.
type Gateway interface {
	Call(ctx context.Context, req Request) (*fields.Map, error)
}

// Error is the structured failure of a model call.
type Error struct {
	Type       string
	Message    string
	StatusCode int
	Raw        string
	Err        error
}

// NewError builds an Error of ErrorType.
func NewError(message string, err error) *Error {
	return &Error{Type: ErrorType, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}
