// internal/session/blocking.go
package session

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// blockedResourceTypes are the resource classes dropped at the fetch stage.
// The chat surface renders without them, and skipping them cuts both load
// time and memory on the shared process.
var blockedResourceTypes = map[network.ResourceType]bool{
	network.ResourceTypeImage:      true,
	network.ResourceTypeStylesheet: true,
	network.ResourceTypeFont:       true,
	network.ResourceTypeMedia:      true,
}

// fetchEnablePatterns pauses every request at the Request stage so the
// listener can decide per resource class.
func fetchEnablePatterns() *fetch.EnableParams {
	return fetch.Enable().WithPatterns([]*fetch.RequestPattern{
		{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
	})
}

// installResourceBlocking registers the paused-request listener on the tab.
// Each decision runs on its own goroutine because the resume call must not
// block chromedp's event loop.
func installResourceBlocking(tabCtx context.Context, logger *zap.Logger) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			execCtx := cdp.WithExecutor(tabCtx, c.Target)

			if blockedResourceTypes[e.ResourceType] {
				if err := fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
					logger.Debug("Failed to block request",
						zap.String("url", e.Request.URL), zap.Error(err))
				}
				return
			}
			if err := fetch.ContinueRequest(e.RequestID).Do(execCtx); err != nil {
				logger.Debug("Failed to continue request",
					zap.String("url", e.Request.URL), zap.Error(err))
			}
		}()
	})
}
