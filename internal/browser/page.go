// Package browser executes the model's tool calls against a controllable web page.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing
	ErrElementNotFound = errors.New("element not found")
	// ErrInvalidSelector is returned when a selector cannot be parsed by the page
	ErrInvalidSelector = errors.New("invalid selector")
)

// Result is the structured outcome of one tool invocation. It is echoed back to the
// model as the tool response, so failures are values rather than errors.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Succeed returns a successful result
func Succeed(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail returns a failed result
func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// Page is the browser surface the executor drives. Element operations report a
// missing element with ErrElementNotFound and an unparsable selector with
// ErrInvalidSelector.
type Page interface {
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	ViewportHeight(ctx context.Context) (float64, error)
	ScrollBy(ctx context.Context, dy float64) error
	// Click highlights and clicks the first element matching selector
	Click(ctx context.Context, selector string) error
	// SetValue focuses the matching input, replaces its value and fires an input event
	SetValue(ctx context.Context, selector, text string) error
	// PressKey dispatches a keydown for key on the matching element, or on the
	// document body when selector is empty
	PressKey(ctx context.Context, key, selector string) error
	OpenTab(ctx context.Context, url string) error
}
