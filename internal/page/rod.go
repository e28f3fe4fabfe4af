package page

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// RodPage adapts a *rod.Page.
type RodPage struct {
	page *rod.Page

	mu         sync.Mutex
	navWait    func()
	navRelease context.CancelFunc
}

// NewRodPage wraps an existing rod page. The caller keeps ownership.
func NewRodPage(p *rod.Page) *RodPage {
	return &RodPage{page: p}
}

// Raw exposes the underlying rod page.
func (p *RodPage) Raw() *rod.Page {
	return p.page
}

func (p *RodPage) Element(ctx context.Context, selector string) (Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	if !has {
		return nil, ErrElementNotFound
	}
	return &rodElement{el: el, page: p}, nil
}

func (p *RodPage) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}

	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, page: p})
	}
	return out, nil
}

func (p *RodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

func (p *RodPage) Eval(ctx context.Context, fn string, args ...interface{}) (interface{}, error) {
	res, err := p.page.Context(ctx).Eval(fn, args...)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

// WaitLoad waits for the load event of the navigation registered by the last
// Submit, then for the current document to finish loading.
func (p *RodPage) WaitLoad(ctx context.Context) error {
	p.mu.Lock()
	wait, release := p.navWait, p.navRelease
	p.navWait, p.navRelease = nil, nil
	p.mu.Unlock()

	if wait != nil {
		defer release()

		done := make(chan struct{})
		go func() {
			wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for navigation: %w", ctx.Err())
		}
	}

	if err := p.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("waiting for page load: %w", err)
	}
	return nil
}

// expectNavigation subscribes to the next load event. It must run before the
// action that navigates, or the event can be missed.
func (p *RodPage) expectNavigation(ctx context.Context) {
	navCtx, release := context.WithCancel(ctx)
	wait := p.page.Context(navCtx).WaitNavigation(proto.PageLifecycleEventNameLoad)

	p.mu.Lock()
	if p.navRelease != nil {
		p.navRelease()
	}
	p.navWait, p.navRelease = wait, release
	p.mu.Unlock()
}

type rodElement struct {
	el   *rod.Element
	page *RodPage
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *rodElement) Submit(ctx context.Context) error {
	e.page.expectNavigation(ctx)
	return e.el.Context(ctx).Type(input.Enter)
}
