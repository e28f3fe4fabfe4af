package page

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tebeka/selenium"

	"searchbot/pkg/utils"
)

const (
	// nilValueMessage is how the selenium client reports a JSON null result,
	// which the protocol uses for an absent attribute.
	nilValueMessage = "nil return value"

	// markPendingSubmitJS flags the window before a submit; a document without
	// it is the one the submit navigated to.
	markPendingSubmitJS = `() => { window.__searchbotPendingSubmit = true; }`
	documentCompleteJS  = `() => document.readyState === 'complete'`
	documentLoadedJS    = `() => document.readyState === 'complete' && !window.__searchbotPendingSubmit`

	defaultLoadPollInterval = 100 * time.Millisecond
)

// WebDriverPage adapts a selenium.WebDriver session. WebDriver calls are
// synchronous HTTP round trips and do not take a context; ctx is only used
// where the adapter itself waits.
type WebDriverPage struct {
	wd           selenium.WebDriver
	pollInterval time.Duration

	mu      sync.Mutex
	pending bool
}

// NewWebDriverPage wraps an existing WebDriver session.
func NewWebDriverPage(wd selenium.WebDriver) *WebDriverPage {
	return &WebDriverPage{wd: wd, pollInterval: defaultLoadPollInterval}
}

func (p *WebDriverPage) Element(ctx context.Context, selector string) (Element, error) {
	els, err := p.Elements(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrElementNotFound
	}
	return els[0], nil
}

func (p *WebDriverPage) Elements(_ context.Context, selector string) ([]Element, error) {
	els, err := p.wd.FindElements(selenium.ByCSSSelector, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}

	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &webDriverElement{el: el, page: p})
	}
	return out, nil
}

func (p *WebDriverPage) URL(context.Context) (string, error) {
	return p.wd.CurrentURL()
}

// Eval wraps the function expression so WebDriver's `arguments` are spread
// into it, matching rod's calling convention.
func (p *WebDriverPage) Eval(_ context.Context, fn string, args ...interface{}) (interface{}, error) {
	script := fmt.Sprintf("return (%s).apply(null, arguments);", fn)
	if args == nil {
		args = []interface{}{}
	}
	return p.wd.ExecuteScript(script, args)
}

// WaitLoad polls document.readyState until it is complete. After a Submit it
// also waits for the submitting document to be replaced.
func (p *WebDriverPage) WaitLoad(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = false
	p.mu.Unlock()

	check := documentCompleteJS
	if pending {
		check = documentLoadedJS
	}

	for {
		v, err := p.Eval(ctx, check)
		if err != nil {
			return fmt.Errorf("waiting for page load: %w", err)
		}
		if loaded, _ := v.(bool); loaded {
			return nil
		}
		if err := utils.Sleep(ctx, p.pollInterval); err != nil {
			return fmt.Errorf("waiting for page load: %w", err)
		}
	}
}

func (p *WebDriverPage) markPendingSubmit(ctx context.Context) {
	if _, err := p.Eval(ctx, markPendingSubmitJS); err != nil {
		return
	}
	p.mu.Lock()
	p.pending = true
	p.mu.Unlock()
}

type webDriverElement struct {
	el   selenium.WebElement
	page *WebDriverPage
}

// Attribute reports a null attribute value as absent and any other failure,
// such as a stale element, as an error.
func (e *webDriverElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, err := e.el.GetAttribute(name)
	if err != nil {
		if err.Error() == nilValueMessage {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read attribute %q: %w", name, err)
	}
	return v, true, nil
}

func (e *webDriverElement) Input(_ context.Context, text string) error {
	return e.el.SendKeys(text)
}

func (e *webDriverElement) Submit(ctx context.Context) error {
	e.page.markPendingSubmit(ctx)
	return e.el.SendKeys(selenium.EnterKey)
}
