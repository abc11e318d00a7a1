// internal/orchestrator/opener.go
package orchestrator

import (
	"context"

	"github.com/xkilldash9x/chatrelay/internal/browser"
	"github.com/xkilldash9x/chatrelay/internal/session"
)

// PoolOpener binds the browser pool and the session acquirer into the Opener
// the orchestrator consumes: acquire a tab, drive it to a ready chat surface,
// and make sure the tab never leaks when the second step fails.
type PoolOpener struct {
	pool     *browser.Pool
	acquirer *session.Acquirer
}

func NewPoolOpener(pool *browser.Pool, acquirer *session.Acquirer) *PoolOpener {
	return &PoolOpener{pool: pool, acquirer: acquirer}
}

func (p *PoolOpener) Open(ctx context.Context) (Session, error) {
	tab, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := p.acquirer.Open(ctx, tab)
	if err != nil {
		tab.Close()
		return nil, err
	}
	return sess, nil
}
