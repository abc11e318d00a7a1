// internal/session/observer.go
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// headerObserver watches outgoing requests on a tab and captures the header
// set of every request hitting the upstream chat endpoint. The most recent
// capture wins; captured headers are time-sensitive and effectively
// single-use, so callers wait for a capture newer than the one they last
// consumed.
type headerObserver struct {
	endpoint string

	mu      sync.Mutex
	headers map[string]string
	seq     int
	notify  chan struct{}
}

func newHeaderObserver(endpoint string) *headerObserver {
	return &headerObserver{
		endpoint: endpoint,
		notify:   make(chan struct{}),
	}
}

// listen registers the CDP listener on the tab context. The callback runs on
// chromedp's event goroutine, so it only takes the lock and returns.
func (o *headerObserver) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok {
			o.handleRequest(e)
		}
	})
}

func (o *headerObserver) handleRequest(e *network.EventRequestWillBeSent) {
	if !strings.HasPrefix(e.Request.URL, o.endpoint) {
		return
	}
	captured := make(map[string]string, len(e.Request.Headers))
	for k, v := range e.Request.Headers {
		captured[k] = fmt.Sprint(v)
	}
	o.store(captured)
}

func (o *headerObserver) store(headers map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.headers = headers
	o.seq++
	close(o.notify)
	o.notify = make(chan struct{})
}

// snapshot returns the current capture generation and a copy of the headers.
func (o *headerObserver) snapshot() (int, map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make(map[string]string, len(o.headers))
	for k, v := range o.headers {
		cp[k] = v
	}
	return o.seq, cp
}

// waitFresh blocks until a capture newer than generation after exists, then
// returns a copy of it.
func (o *headerObserver) waitFresh(ctx context.Context, after int) (map[string]string, error) {
	for {
		o.mu.Lock()
		if o.seq > after {
			cp := make(map[string]string, len(o.headers))
			for k, v := range o.headers {
				cp[k] = v
			}
			o.mu.Unlock()
			return cp, nil
		}
		ch := o.notify
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}
