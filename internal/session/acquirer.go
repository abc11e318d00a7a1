// internal/session/acquirer.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatrelay/internal/browser"
	"github.com/xkilldash9x/chatrelay/internal/browser/stealth"
	"github.com/xkilldash9x/chatrelay/internal/config"
)

// ErrChatSurfaceUnavailable reports that the chat page loaded but no
// interactable input control appeared within the bounded wait.
var ErrChatSurfaceUnavailable = errors.New("chat surface unavailable")

// preferenceFlagsJS sets the client-side flags the chat surface needs before
// it will render: terms acceptance and recent-chat storage opt-out.
const preferenceFlagsJS = `(function() {
	try {
		localStorage.setItem('duckaiHasAgreedToTerms', 'true');
		localStorage.setItem('isRecentChatOn', '1');
		localStorage.setItem('preferredDuckaiModel', '"gpt-4o-mini"');
	} catch (e) {}
	return true;
})()`

// newConversationJS best-effort clicks a "new chat" control if one exists.
const newConversationJS = `(function() {
	const btn = document.querySelector('button[aria-label*="New" i], a[href*="duckai=1"]');
	if (btn) { btn.click(); return true; }
	return false;
})()`

// Acquirer prepares per-request browser sessions on the chat surface:
// resource blocking, stealth, the header observer, and navigation up to an
// interactable input.
type Acquirer struct {
	target     config.TargetConfig
	browserCfg config.BrowserConfig
	persona    stealth.Persona
	logger     *zap.Logger
}

func NewAcquirer(target config.TargetConfig, browserCfg config.BrowserConfig, logger *zap.Logger) *Acquirer {
	return &Acquirer{
		target:     target,
		browserCfg: browserCfg,
		persona:    stealth.DefaultPersona,
		logger:     logger.Named("acquirer"),
	}
}

// Open attaches to a fresh tab and drives it to a ready chat surface. On
// success the returned Session owns the tab; on failure the caller still
// owns it and must close it.
func (a *Acquirer) Open(ctx context.Context, tab *browser.Tab) (*Session, error) {
	obs := newHeaderObserver(a.target.APIEndpoint)
	obs.listen(tab.Context())
	installResourceBlocking(tab.Context(), a.logger)

	navCtx, cancel := context.WithTimeout(ctx, a.browserCfg.NavigationTimeout)
	defer cancel()

	err := tab.Run(navCtx,
		network.Enable(),
		fetchEnablePatterns(),
		stealth.Apply(a.persona, a.logger),
		chromedp.Navigate(a.target.Origin),
		chromedp.Evaluate(preferenceFlagsJS, nil),
		chromedp.Navigate(a.target.ChatURL),
	)
	if err != nil {
		return nil, fmt.Errorf("navigating to chat surface: %w", err)
	}

	inputCtx, cancelInput := context.WithTimeout(ctx, a.browserCfg.InputWaitTimeout)
	defer cancelInput()

	focusJS, err := waitForInput(inputCtx, tab)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Chat surface ready")
	return &Session{
		tab:        tab,
		observer:   obs,
		focusJS:    focusJS,
		headerWait: a.browserCfg.HeaderWaitTimeout,
		logger:     a.logger,
	}, nil
}

// Session is one request's hold on the chat surface: an isolated tab, the
// header observer attached to it, and the focus expression for its input.
type Session struct {
	tab        *browser.Tab
	observer   *headerObserver
	focusJS    string
	headerWait time.Duration
	logger     *zap.Logger
}

// Refresh provokes the page into issuing its internal chat request so the
// observer captures a fresh header set. Captured headers are single-use, so
// this must run before every send attempt, including challenge retries.
func (s *Session) Refresh(ctx context.Context) error {
	before, _ := s.observer.snapshot()

	err := s.tab.Run(ctx,
		chromedp.Evaluate(newConversationJS, nil),
		chromedp.Evaluate(s.focusJS, nil),
		chromedp.SendKeys(focusActiveElement, " ", chromedp.ByJSPath),
		chromedp.SendKeys(focusActiveElement, kb.Enter, chromedp.ByJSPath),
	)
	if err != nil {
		return fmt.Errorf("provoking header refresh: %w", err)
	}

	// The capture wait gets its own fixed bound rather than running until the
	// whole-request deadline.
	waitCtx := ctx
	if s.headerWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.headerWait)
		defer cancel()
	}
	if _, err := s.observer.waitFresh(waitCtx, before); err != nil {
		return fmt.Errorf("waiting for fresh session headers: %w", err)
	}
	return nil
}

// Headers returns a copy of the most recent captured header set.
func (s *Session) Headers() map[string]string {
	_, headers := s.observer.snapshot()
	return headers
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.tab.Screenshot(ctx)
}

// Click dispatches a raw press/release pair at viewport coordinates.
func (s *Session) Click(ctx context.Context, x, y float64) error {
	return s.tab.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1)
		if err := press.Do(ctx); err != nil {
			return fmt.Errorf("mouse press at (%.0f, %.0f): %w", x, y, err)
		}
		release := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1)
		if err := release.Do(ctx); err != nil {
			return fmt.Errorf("mouse release at (%.0f, %.0f): %w", x, y, err)
		}
		return nil
	}))
}

// Close releases the tab. Idempotent; never touches the shared process.
func (s *Session) Close() {
	s.tab.Close()
}
