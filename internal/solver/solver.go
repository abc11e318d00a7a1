// internal/solver/solver.go
package solver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/chatrelay/api/schemas"
	"github.com/xkilldash9x/chatrelay/internal/config"
)

// gridInstruction is the fixed prompt sent with every screenshot. The reply
// format is pinned down hard because free-form prose still happens anyway;
// ParseGrid cleans up whatever comes back.
const gridInstruction = `The screenshot shows a human verification puzzle: an instruction naming a target object and a 3x3 grid of candidate images. Determine which of the 9 tiles contain the target object. Answer with ONLY a JSON 3x3 matrix of 0s and 1s, row by row from the top-left tile, where 1 marks a tile containing the target. Example: [[0,1,0],[0,0,0],[1,0,0]]. No explanation, no markdown.`

// Solver asks a vision model to solve image-selection challenges. It is
// strictly best-effort: every failure past construction yields "no solution"
// rather than an error, and the caller decides what that means.
type Solver struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds the solver. The rate limiter is shared across all concurrent
// requests so a burst of challenges cannot hammer the vision endpoint.
func New(ctx context.Context, cfg config.SolverConfig, logger *zap.Logger) (*Solver, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("solver API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	return &Solver{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 3),
		logger:  logger.Named("solver"),
	}, nil
}

// Solve sends the screenshot to the vision model and parses the reply into a
// grid. A nil grid with a nil error means "no solution"; the only errors
// returned are context cancellations.
func (s *Solver) Solve(ctx context.Context, screenshot []byte) (*schemas.ChallengeGrid, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(screenshot, "image/png"),
			genai.NewPartFromText(gridInstruction),
		}, genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(callCtx, s.model, contents, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("Vision call failed", zap.Error(err))
		return nil, nil
	}

	reply := resp.Text()
	if reply == "" {
		s.logger.Warn("Vision model returned no candidates")
		return nil, nil
	}

	grid, ok := ParseGrid(reply)
	if !ok {
		s.logger.Warn("Could not parse a grid from vision reply",
			zap.String("reply", truncate(reply, 300)))
		return nil, nil
	}
	if grid.Empty() {
		s.logger.Warn("Vision reply marked no cells; treating as no solution")
		return nil, nil
	}

	s.logger.Info("Challenge solved",
		zap.Int("marked_cells", len(grid.Marked())),
		zap.Duration("elapsed", time.Since(start)))
	return grid, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
