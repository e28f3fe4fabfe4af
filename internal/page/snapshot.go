package page

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is a read-only Page over static HTML. Selectors and attributes work
// as in a browser; scripting and input do not.
type Snapshot struct {
	doc *goquery.Document
	url string
}

// NewSnapshot parses HTML from r. pageURL is reported by URL.
func NewSnapshot(r io.Reader, pageURL string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Snapshot{doc: doc, url: pageURL}, nil
}

// NewSnapshotFromString parses an HTML string.
func NewSnapshotFromString(html, pageURL string) (*Snapshot, error) {
	return NewSnapshot(strings.NewReader(html), pageURL)
}

func (s *Snapshot) Element(_ context.Context, selector string) (Element, error) {
	sel := s.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, ErrElementNotFound
	}
	return &snapshotElement{sel: sel.First()}, nil
}

func (s *Snapshot) Elements(_ context.Context, selector string) ([]Element, error) {
	var out []Element
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, &snapshotElement{sel: sel})
	})
	return out, nil
}

func (s *Snapshot) URL(context.Context) (string, error) {
	return s.url, nil
}

func (s *Snapshot) Eval(context.Context, string, ...interface{}) (interface{}, error) {
	return nil, ErrNoScripting
}

// WaitLoad returns immediately: a snapshot is parsed in full up front.
func (s *Snapshot) WaitLoad(ctx context.Context) error {
	return ctx.Err()
}

type snapshotElement struct {
	sel *goquery.Selection
}

func (e *snapshotElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *snapshotElement) Input(context.Context, string) error {
	return ErrReadOnly
}

func (e *snapshotElement) Submit(context.Context) error {
	return ErrReadOnly
}
