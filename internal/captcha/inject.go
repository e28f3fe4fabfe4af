package captcha

import (
	"context"
	"fmt"

	"searchbot/internal/page"
)

// injectTokenJS writes the token into every response field and fires the
// events page scripts listen for. Reading grecaptcha.getResponse() lets the
// library refresh whatever it caches about the response.
const injectTokenJS = `(token) => {
	const areas = document.querySelectorAll('textarea[g-recaptcha-response], #g-recaptcha-response');
	for (const a of areas) {
		a.style.display = 'block';
		a.value = token;
		a.dispatchEvent(new Event('input', { bubbles: true }));
		a.dispatchEvent(new Event('change', { bubbles: true }));
	}
	if (window.grecaptcha && window.grecaptcha.getResponse) {
		try { window.___lastGreResp = window.grecaptcha.getResponse(); } catch (e) {}
	}
}`

// InjectToken runs the injection script. It does not check that the page
// accepted the token.
func InjectToken(ctx context.Context, p page.Page, token string) error {
	if _, err := p.Eval(ctx, injectTokenJS, token); err != nil {
		return fmt.Errorf("failed to inject token: %w", err)
	}
	return nil
}
