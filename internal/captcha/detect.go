package captcha

import (
	"context"
	"net/url"
	"strings"

	"searchbot/internal/page"
)

const siteKeyAttribute = "data-sitekey"

// Detector looks for a site key on a page. Detectors never fail: any lookup
// error simply means "not found here".
type Detector struct {
	Name   string
	Detect func(ctx context.Context, p page.Page) (string, bool)
}

// DefaultDetectors is the lookup order used by the solver.
var DefaultDetectors = []Detector{
	{Name: "widget", Detect: widgetSiteKey},
	{Name: "badge", Detect: badgeSiteKey},
	{Name: "script", Detect: scriptSiteKey},
	{Name: "global", Detect: globalSiteKey},
}

// DetectSiteKey tries detectors in order and returns the first hit together
// with the detector's name.
func DetectSiteKey(ctx context.Context, p page.Page, detectors []Detector) (siteKey, detectedBy string, ok bool) {
	for _, d := range detectors {
		if key, found := d.Detect(ctx, p); found {
			return key, d.Name, true
		}
	}
	return "", "", false
}

// widgetSiteKey reads the explicit checkbox widget.
func widgetSiteKey(ctx context.Context, p page.Page) (string, bool) {
	el, err := p.Element(ctx, "div.g-recaptcha")
	if err != nil {
		return "", false
	}
	return nonEmptyAttribute(ctx, el, siteKeyAttribute)
}

// badgeSiteKey covers invisible widgets and the floating badge.
func badgeSiteKey(ctx context.Context, p page.Page) (string, bool) {
	els, err := p.Elements(ctx, "div.grecaptcha-badge, div.g-recaptcha")
	if err != nil {
		return "", false
	}
	for _, el := range els {
		if key, ok := nonEmptyAttribute(ctx, el, siteKeyAttribute); ok {
			return key, true
		}
	}
	return "", false
}

// scriptSiteKey reads `render=<key>` from the loader script,
// e.g. https://www.google.com/recaptcha/api.js?render=SITE_KEY.
func scriptSiteKey(ctx context.Context, p page.Page) (string, bool) {
	els, err := p.Elements(ctx, `script[src*="/recaptcha/"]`)
	if err != nil {
		return "", false
	}
	for _, el := range els {
		src, ok, err := el.Attribute(ctx, "src")
		if err != nil || !ok {
			continue
		}
		if key := renderParam(src); key != "" {
			return key, true
		}
	}
	return "", false
}

// renderParam extracts the render query parameter; "explicit" and "onload"
// are rendering modes, not keys.
func renderParam(src string) string {
	var key string
	if u, err := url.Parse(src); err == nil {
		key = u.Query().Get("render")
	} else if _, after, found := strings.Cut(src, "render="); found {
		key, _, _ = strings.Cut(after, "&")
	}

	switch strings.ToLower(key) {
	case "explicit", "onload":
		return ""
	}
	return strings.TrimSpace(key)
}

const siteKeyGlobalsJS = `() => (window.__SITE_KEY__ || window.sitekey || null)`

// globalSiteKey falls back to page globals some sites expose.
func globalSiteKey(ctx context.Context, p page.Page) (string, bool) {
	v, err := p.Eval(ctx, siteKeyGlobalsJS)
	if err != nil {
		return "", false
	}
	key, ok := v.(string)
	if !ok || strings.TrimSpace(key) == "" {
		return "", false
	}
	return key, true
}

func nonEmptyAttribute(ctx context.Context, el page.Element, name string) (string, bool) {
	v, ok, err := el.Attribute(ctx, name)
	if err != nil || !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
