// internal/session/locator.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/chatrelay/internal/browser"
)

// locatorPollInterval is how often the strategies are retried while waiting
// for the chat input to become interactable.
const locatorPollInterval = 250 * time.Millisecond

// focusActiveElement is the JS-path expression keystrokes are sent to once an
// input has been focused.
const focusActiveElement = "document.activeElement"

// inputSelectors are tried in order on every poll. Specific selectors first;
// the generic editable-element predicate is the last resort.
var inputSelectors = []string{
	`textarea[name="user-prompt"]`,
	`textarea[placeholder]`,
	`div[contenteditable="true"]`,
}

// selectorVisibleJS reports whether the first match for a selector is
// rendered and enabled.
const selectorVisibleJS = `(function(sel) {
	const el = document.querySelector(sel);
	if (!el || el.disabled) return false;
	const r = el.getBoundingClientRect();
	const st = window.getComputedStyle(el);
	return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
})(%q)`

// anyEditableVisibleJS is the generic fallback: any visible editable element
// counts as a usable chat input.
const anyEditableVisibleJS = `(function() {
	const els = document.querySelectorAll('textarea, input[type="text"], [contenteditable="true"]');
	for (const el of els) {
		if (el.disabled) continue;
		const r = el.getBoundingClientRect();
		if (r.width > 0 && r.height > 0) return true;
	}
	return false;
})()`

// focusSelectorJS focuses the first match for a selector.
const focusSelectorJS = `(function(sel) {
	const el = document.querySelector(sel);
	if (el) el.focus();
	return !!el;
})(%q)`

// focusAnyEditableJS focuses the first visible editable element.
const focusAnyEditableJS = `(function() {
	const els = document.querySelectorAll('textarea, input[type="text"], [contenteditable="true"]');
	for (const el of els) {
		if (el.disabled) continue;
		const r = el.getBoundingClientRect();
		if (r.width > 0 && r.height > 0) { el.focus(); return true; }
	}
	return false;
})()`

// waitForInput polls the locator strategies until one reports an
// interactable input or ctx expires. It returns the JS expression that
// focuses the matched input.
func waitForInput(ctx context.Context, tab *browser.Tab) (string, error) {
	ticker := time.NewTicker(locatorPollInterval)
	defer ticker.Stop()

	for {
		for _, sel := range inputSelectors {
			var visible bool
			check := fmt.Sprintf(selectorVisibleJS, sel)
			if err := tab.Run(ctx, chromedp.Evaluate(check, &visible)); err != nil {
				if ctx.Err() != nil {
					return "", ErrChatSurfaceUnavailable
				}
				continue
			}
			if visible {
				return fmt.Sprintf(focusSelectorJS, sel), nil
			}
		}

		var visible bool
		if err := tab.Run(ctx, chromedp.Evaluate(anyEditableVisibleJS, &visible)); err == nil && visible {
			return focusAnyEditableJS, nil
		}

		select {
		case <-ctx.Done():
			return "", ErrChatSurfaceUnavailable
		case <-ticker.C:
		}
	}
}
