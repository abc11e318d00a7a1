// internal/browser/pool.go
package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/chatrelay/internal/config"
)

// ErrBrowserUnavailable reports that the shared browser process was torn down
// (or failed) while a request was trying to use it. The condition is
// transient; callers may retry once, which recreates the process.
var ErrBrowserUnavailable = errors.New("browser process unavailable")

// janitorInterval is how often the idle check runs.
const janitorInterval = 30 * time.Second

// Pool owns the single shared headless browser process. The process is
// created lazily on first use, shared by all concurrent requests (each
// request gets its own isolated tab), and torn down by a janitor once it has
// been idle longer than the configured freshness window.
type Pool struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// group collapses concurrent create attempts into one cold start.
	group singleflight.Group

	mu         sync.Mutex
	proc       *process
	activeTabs int
	lastUsed   time.Time
	closed     bool

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// process is one live browser: the exec allocator plus the browser-level
// chromedp context all tabs hang off.
type process struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func (pr *process) stop() {
	pr.browserCancel()
	pr.allocCancel()
}

// NewPool creates the pool and starts its janitor. No browser is launched
// until the first Acquire.
func NewPool(cfg config.BrowserConfig, logger *zap.Logger) *Pool {
	p := &Pool{
		cfg:         cfg,
		logger:      logger.Named("pool"),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go p.janitor()
	return p
}

// Acquire returns a fresh isolated tab on the shared browser process,
// creating the process first if necessary. The caller must Close the tab on
// every exit path; closing a tab never tears down the shared process.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrBrowserUnavailable
	}
	proc := p.proc
	// A crashed process stays registered until someone notices. Deregister it
	// here so the create path below can launch a replacement instead of every
	// caller failing until the janitor's idle eviction.
	if proc != nil && proc.browserCtx.Err() != nil {
		p.proc = nil
		p.mu.Unlock()
		p.logger.Warn("Shared browser process died, relaunching")
		proc.stop()
		proc = nil
	} else {
		p.mu.Unlock()
	}

	if proc == nil {
		created, err, _ := p.group.Do("browser", func() (interface{}, error) {
			return p.startProcess(ctx)
		})
		if err != nil {
			return nil, err
		}
		proc = created.(*process)
	}

	// The janitor may have evicted the process between the lookup and here.
	if proc.browserCtx.Err() != nil {
		return nil, ErrBrowserUnavailable
	}

	tabCtx, tabCancel := chromedp.NewContext(proc.browserCtx)

	p.mu.Lock()
	if p.closed || p.proc != proc {
		p.mu.Unlock()
		tabCancel()
		return nil, ErrBrowserUnavailable
	}
	p.activeTabs++
	p.lastUsed = time.Now()
	p.mu.Unlock()

	return &Tab{ctx: tabCtx, cancel: tabCancel, pool: p}, nil
}

// startProcess launches the browser and registers it as the pool's current
// process. Runs under singleflight, so only one caller pays the cold start.
func (p *Pool) startProcess(ctx context.Context) (*process, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrBrowserUnavailable
	}
	if p.proc != nil && p.proc.browserCtx.Err() == nil {
		existing := p.proc
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	p.logger.Info("Launching shared browser process",
		zap.Bool("headless", p.cfg.Headless))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		// Fixed window so on-screen coordinates stay stable across launches.
		chromedp.WindowSize(1280, 800),
	)
	for _, arg := range p.cfg.Args {
		name, value := splitFlag(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}

	// The process outlives the acquiring request, so it is anchored on the
	// background context rather than ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser to actually start so failures surface here, not on
	// the first navigation.
	startCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	defer cancel()
	if err := runWithDeadline(startCtx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, errors.Join(ErrBrowserUnavailable, err)
	}

	proc := &process{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		proc.stop()
		return nil, ErrBrowserUnavailable
	}
	p.proc = proc
	p.lastUsed = time.Now()
	p.mu.Unlock()

	return proc, nil
}

// runWithDeadline starts the browser target, bounded by deadline.
func runWithDeadline(deadline context.Context, browserCtx context.Context) error {
	runCtx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	stop := context.AfterFunc(deadline, cancel)
	defer stop()
	if err := chromedp.Run(runCtx); err != nil {
		if deadline.Err() != nil {
			return deadline.Err()
		}
		return err
	}
	return nil
}

// release is called by Tab.Close.
func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activeTabs > 0 {
		p.activeTabs--
	}
	p.lastUsed = time.Now()
}

// janitor evicts the shared process after the freshness window has elapsed
// with no tab activity. Eviction never touches a process with live tabs.
func (p *Pool) janitor() {
	defer close(p.janitorDone)
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.janitorStop:
			return
		case <-ticker.C:
			p.evictIfStale()
		}
	}
}

func (p *Pool) evictIfStale() {
	p.mu.Lock()
	proc := p.proc
	stale := proc != nil &&
		p.activeTabs == 0 &&
		time.Since(p.lastUsed) > p.cfg.Freshness
	if stale {
		p.proc = nil
	}
	p.mu.Unlock()

	if stale {
		p.logger.Info("Evicting idle browser process",
			zap.Duration("freshness", p.cfg.Freshness))
		proc.stop()
	}
}

// Shutdown stops the janitor and tears down the browser process. The pool is
// unusable afterwards.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	proc := p.proc
	p.proc = nil
	p.mu.Unlock()

	close(p.janitorStop)
	select {
	case <-p.janitorDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	if proc != nil {
		p.logger.Info("Shutting down shared browser process")
		proc.stop()
	}
	return nil
}

// splitFlag turns one raw command-line argument into a chromedp flag.
// "--proxy-server=host:port" keeps its value; bare "--no-sandbox" is boolean.
func splitFlag(arg string) (string, interface{}) {
	arg = trimFlag(arg)
	if name, value, found := strings.Cut(arg, "="); found {
		return name, value
	}
	return arg, true
}

func trimFlag(arg string) string {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	return arg
}
