// internal/actuator/actuator.go
package actuator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatrelay/api/schemas"
	"github.com/xkilldash9x/chatrelay/internal/config"
)

// Page is the click surface the actuator drives.
type Page interface {
	Click(ctx context.Context, x, y float64) error
}

// Actuator translates a solved grid into pointer clicks at the puzzle's
// fixed screen geometry. Success is reported as a plain bool: any failure
// mid-sequence is actuation failure, and partial clicks are not rolled back.
type Actuator struct {
	cfg    config.ChallengeConfig
	logger *zap.Logger
}

func New(cfg config.ChallengeConfig, logger *zap.Logger) *Actuator {
	return &Actuator{cfg: cfg, logger: logger.Named("actuator")}
}

// CellPoint computes the viewport click point for one grid cell from the
// configured origin, pitch and intra-cell centering offset.
func CellPoint(cfg config.ChallengeConfig, cell schemas.GridCell) (x, y float64) {
	x = cfg.GridOriginX + float64(cell.Col)*cfg.CellPitch + cfg.CellOffset
	y = cfg.GridOriginY + float64(cell.Row)*cfg.CellPitch + cfg.CellOffset
	return x, y
}

// Actuate clicks every marked cell in row-major order with a settle delay
// after each click, then the submit control with a longer settle delay. Each
// click must fully resolve before the next or the UI drops inputs.
func (a *Actuator) Actuate(ctx context.Context, page Page, grid *schemas.ChallengeGrid) bool {
	for _, cell := range grid.Marked() {
		x, y := CellPoint(a.cfg, cell)
		if err := page.Click(ctx, x, y); err != nil {
			a.logger.Warn("Cell click failed",
				zap.Int("row", cell.Row), zap.Int("col", cell.Col), zap.Error(err))
			return false
		}
		if err := sleep(ctx, a.cfg.ClickSettle); err != nil {
			return false
		}
	}

	if err := page.Click(ctx, a.cfg.SubmitX, a.cfg.SubmitY); err != nil {
		a.logger.Warn("Submit click failed", zap.Error(err))
		return false
	}
	if err := sleep(ctx, a.cfg.SubmitSettle); err != nil {
		return false
	}

	a.logger.Debug("Challenge actuation complete",
		zap.Int("cells", len(grid.Marked())))
	return true
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
