package page

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tebeka/selenium"
)

type scriptCall struct {
	script string
	args   []interface{}
}

// fakeWebDriver implements the few selenium.WebDriver methods the adapter
// uses; anything else panics through the nil embedded interface.
type fakeWebDriver struct {
	selenium.WebDriver

	elements  []selenium.WebElement
	findErr   error
	selectors []string
	calls     []scriptCall
	results   []interface{}
}

func (f *fakeWebDriver) FindElements(by, value string) ([]selenium.WebElement, error) {
	if by != selenium.ByCSSSelector {
		return nil, errors.New("unexpected locator " + by)
	}
	f.selectors = append(f.selectors, value)
	return f.elements, f.findErr
}

func (f *fakeWebDriver) CurrentURL() (string, error) {
	return "https://example.com/login", nil
}

func (f *fakeWebDriver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	f.calls = append(f.calls, scriptCall{script: script, args: args})
	if len(f.results) == 0 {
		return nil, nil
	}
	v := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return v, nil
}

type fakeWebElement struct {
	selenium.WebElement

	attrs   map[string]string
	attrErr error
	keys    []string
}

func (f *fakeWebElement) GetAttribute(name string) (string, error) {
	if f.attrErr != nil {
		return "", f.attrErr
	}
	v, ok := f.attrs[name]
	if !ok {
		return "", errors.New(nilValueMessage)
	}
	return v, nil
}

func (f *fakeWebElement) SendKeys(keys string) error {
	f.keys = append(f.keys, keys)
	return nil
}

func TestWebDriverPage_EvalWrapsFunction(t *testing.T) {
	tests := []struct {
		name     string
		fn       string
		args     []interface{}
		wantArgs []interface{}
	}{
		{
			name:     "no arguments",
			fn:       `() => (window.__SITE_KEY__ || window.sitekey || null)`,
			wantArgs: []interface{}{},
		},
		{
			name:     "with arguments",
			fn:       `(token) => { document.title = token; }`,
			args:     []interface{}{"TOKEN"},
			wantArgs: []interface{}{"TOKEN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wd := &fakeWebDriver{results: []interface{}{"6LcKEY"}}
			p := NewWebDriverPage(wd)

			got, err := p.Eval(context.Background(), tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != "6LcKEY" {
				t.Errorf("result = %v", got)
			}

			if len(wd.calls) != 1 {
				t.Fatalf("ExecuteScript calls = %d, want 1", len(wd.calls))
			}
			call := wd.calls[0]
			if want := "return (" + tt.fn + ").apply(null, arguments);"; call.script != want {
				t.Errorf("script = %q, want %q", call.script, want)
			}
			if call.args == nil {
				t.Error("arguments must be a non-nil slice")
			}
			if !reflect.DeepEqual(call.args, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", call.args, tt.wantArgs)
			}
		})
	}
}

func TestWebDriverPage_ElementNotFound(t *testing.T) {
	wd := &fakeWebDriver{}
	p := NewWebDriverPage(wd)

	if _, err := p.Element(context.Background(), "div.g-recaptcha"); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
	if !reflect.DeepEqual(wd.selectors, []string{"div.g-recaptcha"}) {
		t.Errorf("selectors = %v", wd.selectors)
	}
}

func TestWebDriverPage_FindError(t *testing.T) {
	p := NewWebDriverPage(&fakeWebDriver{findErr: errors.New("invalid session id")})

	_, err := p.Elements(context.Background(), "script")
	if err == nil || errors.Is(err, ErrElementNotFound) {
		t.Errorf("expected a query error, got %v", err)
	}
}

func TestWebDriverElement_Attribute(t *testing.T) {
	el := &fakeWebElement{attrs: map[string]string{"data-sitekey": "6LcKEY"}}
	wd := &fakeWebDriver{elements: []selenium.WebElement{el}}
	ctx := context.Background()

	got, err := NewWebDriverPage(wd).Element(ctx, "div.g-recaptcha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok, err := got.Attribute(ctx, "data-sitekey")
	if err != nil || !ok || v != "6LcKEY" {
		t.Errorf("present attribute = (%q, %v, %v)", v, ok, err)
	}

	v, ok, err = got.Attribute(ctx, "data-callback")
	if err != nil || ok || v != "" {
		t.Errorf("null attribute = (%q, %v, %v), want absent", v, ok, err)
	}

	el.attrErr = errors.New("stale element reference")
	if _, _, err := got.Attribute(ctx, "data-sitekey"); err == nil {
		t.Error("a stale element must surface as an error")
	}
}

func TestWebDriverPage_SubmitThenWaitLoad(t *testing.T) {
	el := &fakeWebElement{}
	wd := &fakeWebDriver{
		elements: []selenium.WebElement{el},
		results:  []interface{}{nil, false, false, true},
	}
	p := NewWebDriverPage(wd)
	p.pollInterval = time.Millisecond
	ctx := context.Background()

	box, err := p.Element(ctx, "#APjFqb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := box.Submit(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(el.keys, []string{selenium.EnterKey}) {
		t.Errorf("keys = %q", el.keys)
	}

	if err := p.WaitLoad(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantScripts := []string{markPendingSubmitJS, documentLoadedJS, documentLoadedJS, documentLoadedJS}
	if len(wd.calls) != len(wantScripts) {
		t.Fatalf("ExecuteScript calls = %d, want %d", len(wd.calls), len(wantScripts))
	}
	for i, want := range wantScripts {
		if wd.calls[i].script != "return ("+want+").apply(null, arguments);" {
			t.Errorf("call %d = %q", i, wd.calls[i].script)
		}
	}

	wd.calls = nil
	if err := p.WaitLoad(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wd.calls[0].script != "return ("+documentCompleteJS+").apply(null, arguments);" {
		t.Errorf("without a submit only readyState is checked, got %q", wd.calls[0].script)
	}
}

func TestWebDriverPage_WaitLoadHonoursContext(t *testing.T) {
	wd := &fakeWebDriver{results: []interface{}{false}}
	p := NewWebDriverPage(wd)
	p.pollInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := p.WaitLoad(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
