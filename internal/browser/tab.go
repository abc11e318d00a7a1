// internal/browser/tab.go
package browser

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"
)

// Tab is one isolated browsing context on the shared process. It belongs to a
// single request; Close must run on every exit path and only destroys the
// tab, never the process underneath it.
type Tab struct {
	ctx       context.Context
	cancel    context.CancelFunc
	pool      *Pool
	closeOnce sync.Once
}

// Context exposes the chromedp context for CDP listeners that must be
// registered on the tab itself.
func (t *Tab) Context() context.Context {
	return t.ctx
}

// Run executes chromedp actions on this tab. Cancellation of ctx stops the
// run without destroying the tab's own context.
func (t *Tab) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Screenshot captures the full viewport as PNG bytes.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close destroys the tab and returns its slot to the pool. Idempotent.
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.pool.release()
	})
}
