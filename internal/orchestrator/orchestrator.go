// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatrelay/api/schemas"
	"github.com/xkilldash9x/chatrelay/internal/actuator"
	"github.com/xkilldash9x/chatrelay/internal/browser"
	"github.com/xkilldash9x/chatrelay/internal/config"
	"github.com/xkilldash9x/chatrelay/internal/upstream"
)

// ErrChallengeUnresolved is the single external failure class for both an
// exhausted attempt budget and an unsolvable challenge; the distinction is
// internal bookkeeping only.
var ErrChallengeUnresolved = errors.New("challenge could not be resolved")

// Session is one request's exclusive hold on a browser tab attached to the
// chat surface.
type Session interface {
	Refresh(ctx context.Context) error
	Headers() map[string]string
	Screenshot(ctx context.Context) ([]byte, error)
	Click(ctx context.Context, x, y float64) error
	Close()
}

// Opener produces a ready Session on the shared browser process.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Sender replays the chat call with captured headers.
type Sender interface {
	Send(ctx context.Context, headers map[string]string, req *schemas.ChatRequest) (string, error)
}

// GridSolver turns a challenge screenshot into a grid; nil grid means no
// solution.
type GridSolver interface {
	Solve(ctx context.Context, screenshot []byte) (*schemas.ChallengeGrid, error)
}

// GridActuator clicks a solved grid into the page.
type GridActuator interface {
	Actuate(ctx context.Context, page actuator.Page, grid *schemas.ChallengeGrid) bool
}

// Result is the terminal success state of one proxied request.
type Result struct {
	Answer string
	// ChallengePasses is how many verification cycles were solved on the way
	// to the answer.
	ChallengePasses int
}

// Orchestrator drives one chat request through header acquisition, the
// upstream send, and as many challenge cycles as the attempt budget allows.
type Orchestrator struct {
	cfg      config.ChallengeConfig
	opener   Opener
	sender   Sender
	solver   GridSolver
	actuator GridActuator
	logger   *zap.Logger
}

func New(cfg config.ChallengeConfig, opener Opener, sender Sender, solver GridSolver, act GridActuator, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		opener:   opener,
		sender:   sender,
		solver:   solver,
		actuator: act,
		logger:   logger.Named("orchestrator"),
	}
}

// Handle runs one request to a terminal state. The browser session is closed
// on every exit path; the shared process is never touched.
func (o *Orchestrator) Handle(ctx context.Context, req *schemas.ChatRequest) (*Result, error) {
	log := o.logger.With(zap.String("request_id", uuid.New().String()))

	sess, err := o.openSession(ctx, log)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	attempts := 0
	for {
		// Headers are single-use; a refresh is mandatory before every send,
		// including the first and every challenge retry.
		if err := sess.Refresh(ctx); err != nil {
			return nil, err
		}

		answer, err := o.sender.Send(ctx, sess.Headers(), req)
		if err == nil {
			log.Info("Request answered",
				zap.Int("challenge_passes", attempts),
				zap.Int("answer_len", len(answer)))
			return &Result{Answer: answer, ChallengePasses: attempts}, nil
		}
		if !errors.Is(err, upstream.ErrChallengeRequired) {
			return nil, err
		}

		attempts++
		if attempts > o.cfg.MaxAttempts {
			log.Warn("Challenge attempt budget exhausted",
				zap.Int("max_attempts", o.cfg.MaxAttempts))
			return nil, ErrChallengeUnresolved
		}
		log.Info("Challenge encountered", zap.Int("attempt", attempts))

		if !o.resolveChallenge(ctx, sess, log) {
			// Missing solution or failed actuation is an immediate abort;
			// spending another attempt cannot recover it.
			return nil, ErrChallengeUnresolved
		}

		if err := sleep(ctx, o.cfg.RetrySettle); err != nil {
			return nil, err
		}
	}
}

// resolveChallenge runs one screenshot/solve/actuate cycle.
func (o *Orchestrator) resolveChallenge(ctx context.Context, sess Session, log *zap.Logger) bool {
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		log.Warn("Challenge screenshot failed", zap.Error(err))
		return false
	}

	grid, err := o.solver.Solve(ctx, shot)
	if err != nil || grid == nil {
		log.Warn("No challenge solution", zap.Error(err))
		return false
	}

	if !o.actuator.Actuate(ctx, sess, grid) {
		log.Warn("Challenge actuation failed")
		return false
	}
	return true
}

// openSession opens the per-request browser session, retrying once when the
// shared process was torn down under the request.
func (o *Orchestrator) openSession(ctx context.Context, log *zap.Logger) (Session, error) {
	sess, err := o.opener.Open(ctx)
	if errors.Is(err, browser.ErrBrowserUnavailable) {
		log.Warn("Browser process unavailable, retrying once")
		sess, err = o.opener.Open(ctx)
	}
	return sess, err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
