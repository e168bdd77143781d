package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog"
)

// DefaultScrollFraction is the share of the viewport scrolled when no distance is given
const DefaultScrollFraction = 0.8

// Executor maps tool calls onto page operations. It never returns an error or panics
// past its boundary: every failure is reported as a failed Result.
type Executor struct {
	page   Page
	logger zerolog.Logger
}

// NewExecutor creates an executor driving page
func NewExecutor(page Page, logger zerolog.Logger) *Executor {
	return &Executor{
		page:   page,
		logger: logger.With().Str("component", "browser_executor").Logger(),
	}
}

// Execute dispatches one tool call by name
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("tool", name).Interface("panic", r).Msg("Tool execution panicked")
			res = Fail(fmt.Sprintf("Error executing %s: %v", name, r))
		}
		e.logger.Debug().
			Str("tool", name).
			Bool("success", res.Success).
			Str("message", res.Message).
			Msg("Tool executed")
	}()

	switch name {
	case ToolNavigate:
		var a NavigateArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return executionError(name, err)
		}
		return e.Navigate(ctx, a.Direction)
	case ToolScroll:
		var a ScrollArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return executionError(name, err)
		}
		var pixels *float64
		if v, ok := args["pixels"]; ok && v != nil {
			pixels = &a.Pixels
		}
		return e.Scroll(ctx, a.Direction, pixels)
	case ToolClick:
		var a ClickArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return executionError(name, err)
		}
		return e.Click(ctx, a.Selector)
	case ToolTypeText:
		var a TypeTextArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return executionError(name, err)
		}
		return e.TypeText(ctx, a.Text, a.Selector)
	case ToolPressKey:
		var a PressKeyArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return executionError(name, err)
		}
		return e.PressKey(ctx, a.Key, a.Selector)
	case ToolOpenApplication:
		var a OpenApplicationArgs
		if err := decodeArgs(name, args, &a); err != nil {
			return executionError(name, err)
		}
		return e.OpenApplication(ctx, a.AppName)
	default:
		return Fail("Unknown function: " + name)
	}
}

// Navigate moves through history; "home" reloads the page
func (e *Executor) Navigate(ctx context.Context, direction string) Result {
	var err error
	switch direction {
	case "back":
		err = e.page.Back(ctx)
	case "forward":
		err = e.page.Forward(ctx)
	case "home":
		err = e.page.Reload(ctx)
	default:
		err = fmt.Errorf("unsupported direction %q", direction)
	}
	if err != nil {
		return executionError(ToolNavigate, err)
	}
	return Succeed(fmt.Sprintf("Navigated %s.", direction))
}

// Scroll moves the window vertically. A nil pixels scrolls most of one viewport.
func (e *Executor) Scroll(ctx context.Context, direction string, pixels *float64) Result {
	if direction != "up" && direction != "down" {
		return executionError(ToolScroll, fmt.Errorf("unsupported direction %q", direction))
	}

	var amount float64
	if pixels != nil {
		amount = *pixels
	} else {
		height, err := e.page.ViewportHeight(ctx)
		if err != nil {
			return executionError(ToolScroll, err)
		}
		amount = height * DefaultScrollFraction
	}
	if direction == "up" {
		amount = -amount
	}

	if err := e.page.ScrollBy(ctx, amount); err != nil {
		return executionError(ToolScroll, err)
	}
	return Succeed(fmt.Sprintf("Scrolled %s by %spx.", direction, strconv.FormatFloat(math.Abs(amount), 'f', -1, 64)))
}

// Click clicks the first element matching selector
func (e *Executor) Click(ctx context.Context, selector string) Result {
	err := e.page.Click(ctx, selector)
	switch {
	case err == nil:
		return Succeed(fmt.Sprintf("Clicked element: \"%s\".", selector))
	case errors.Is(err, ErrElementNotFound):
		return Fail(fmt.Sprintf("Element \"%s\" not found.", selector))
	case errors.Is(err, ErrInvalidSelector):
		return Fail("Invalid selector: " + selector)
	default:
		return executionError(ToolClick, err)
	}
}

// TypeText replaces the value of the input matching selector
func (e *Executor) TypeText(ctx context.Context, text, selector string) Result {
	err := e.page.SetValue(ctx, selector, text)
	switch {
	case err == nil:
		return Succeed(fmt.Sprintf("Typed \"%s\" into \"%s\".", text, selector))
	case errors.Is(err, ErrElementNotFound):
		return Fail(fmt.Sprintf("Input \"%s\" not found.", selector))
	case errors.Is(err, ErrInvalidSelector):
		return Fail("Invalid selector: " + selector)
	default:
		return executionError(ToolTypeText, err)
	}
}

// PressKey simulates a key press, optionally on a specific element
func (e *Executor) PressKey(ctx context.Context, key, selector string) Result {
	err := e.page.PressKey(ctx, key, selector)
	switch {
	case err == nil:
		return Succeed(fmt.Sprintf("Simulated key press: [%s].", key))
	case errors.Is(err, ErrElementNotFound):
		return Fail(fmt.Sprintf("Element \"%s\" not found for key press.", selector))
	default:
		e.logger.Warn().Err(err).Str("key", key).Msg("Key press failed")
		return Fail("Failed to press key: " + key)
	}
}

// OpenApplication opens a known application in a new tab
func (e *Executor) OpenApplication(ctx context.Context, appName string) Result {
	url, ok := ApplicationURL(appName)
	if !ok {
		return Fail(fmt.Sprintf("Application \"%s\" unknown.", appName))
	}
	if err := e.page.OpenTab(ctx, url); err != nil {
		e.logger.Warn().Err(err).Str("url", url).Msg("Failed to open tab")
		return Fail(fmt.Sprintf("Popup blocked for %s.", appName))
	}
	return Succeed(fmt.Sprintf("Launching %s...", appName))
}

func executionError(tool string, err error) Result {
	return Fail(fmt.Sprintf("Error executing %s: %v", tool, err))
}

// decodeArgs checks required arguments and converts the loosely typed map into dst
func decodeArgs(tool string, args map[string]any, dst any) error {
	for _, name := range requiredArgs(tool) {
		if v, ok := args[name]; !ok || v == nil {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
