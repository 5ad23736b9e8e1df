package browser

import (
	"fmt"

	"github.com/entrhq/clippypour/pkg/page"
)

// SubmitScript submits the form matched by args.selector or enclosing the
// element it matches. An enabled submit button is clicked so click handlers
// run; otherwise the form is submitted through requestSubmit. The click is
// deferred to a timer so the evaluation returns before the page unloads.
//
// It returns "clicked", "requested", "not-found" or "no-form".
const SubmitScript = `(args) => {
	let el = null;
	try { el = document.querySelector(args.selector); } catch (e) { el = null; }
	if (!el) return 'not-found';

	const form = el.tagName === 'FORM' ? el : el.closest('form');
	if (!form) return 'no-form';

	const button = form.querySelector('button[type=submit], input[type=submit], button:not([type])');
	if (button && !button.disabled) {
		setTimeout(() => button.click(), 0);
		return 'clicked';
	}
	setTimeout(() => {
		if (typeof form.requestSubmit === 'function') form.requestSubmit(); else form.submit();
	}, 0);
	return 'requested';
}`

// SubmitArgs returns the argument object SubmitScript expects.
func SubmitArgs(selector string) map[string]interface{} {
	return map[string]interface{}{"selector": selector}
}

// SubmitResult converts SubmitScript's return value to an error.
func SubmitResult(selector, result string) error {
	switch result {
	case "clicked", "requested":
		return nil
	case "not-found":
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, nil)
	case "no-form":
		return fmt.Errorf("submit %s: %w", selector, page.ErrNoForm)
	default:
		return fmt.Errorf("submit %s: unexpected result %q", selector, result)
	}
}
