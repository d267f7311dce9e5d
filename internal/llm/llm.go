package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Client is the inference capability: given instructions, an input payload
// and an output schema, return JSON or fail.
type Client interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any, schema *Schema) (json.RawMessage, error)
	Close() error
}

var ErrEmptyResponse = errors.New("empty response from model")

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// MalformedOutputError is returned when the model answered with text that is
// not valid JSON. Text keeps the raw answer so callers can attempt recovery.
type MalformedOutputError struct {
	Text string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("model returned malformed json (%d bytes)", len(e.Text))
}

// checkJSON wraps non-JSON text in a MalformedOutputError.
func checkJSON(text string) (json.RawMessage, error) {
	if text == "" {
		return nil, ErrEmptyResponse
	}
	if !json.Valid([]byte(text)) {
		return nil, &MalformedOutputError{Text: text}
	}
	return json.RawMessage(text), nil
}

func marshalInput(input any) string {
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(b)
}
