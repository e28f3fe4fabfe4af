// Package page defines the small set of browser capabilities the rest of the
// application needs, with adapters for go-rod, WebDriver and static HTML.
package page

import (
	"context"
	"errors"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoScripting is returned by pages that cannot run JavaScript.
	ErrNoScripting = errors.New("page does not support script execution")
	// ErrReadOnly is returned by pages that cannot be interacted with.
	ErrReadOnly = errors.New("page is read-only")
)

// Page is a borrowed handle on a loaded document.
type Page interface {
	// Element returns the first match for a CSS selector or ErrElementNotFound.
	// It does not wait for the element to appear.
	Element(ctx context.Context, selector string) (Element, error)
	// Elements returns every match for a CSS selector, possibly none.
	Elements(ctx context.Context, selector string) ([]Element, error)
	// URL returns the current document URL.
	URL(ctx context.Context) (string, error)
	// Eval runs a JavaScript function expression, e.g. `(a, b) => a + b`,
	// with the given arguments and returns its JSON-decoded result.
	Eval(ctx context.Context, fn string, args ...interface{}) (interface{}, error)
	// WaitLoad blocks until the navigation started by the last Submit, if any,
	// has finished and the document is fully loaded.
	WaitLoad(ctx context.Context) error
}

// Element is a single DOM node.
type Element interface {
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Input types text into the element.
	Input(ctx context.Context, text string) error
	// Submit presses Enter on the element. The navigation it may trigger is
	// awaited with Page.WaitLoad.
	Submit(ctx context.Context) error
}

// Title reads document.title through Eval.
func Title(ctx context.Context, p Page) (string, error) {
	v, err := p.Eval(ctx, `() => document.title`)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}
