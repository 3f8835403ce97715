package service

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"reelrelay/internal/core/domain"
)

// DefaultNicheDelay is the pause between niches when pacing is enabled.
const DefaultNicheDelay = time.Hour

// NicheRunner runs a single niche.
type NicheRunner interface {
	Run(ctx context.Context, niche domain.NicheConfig) (RunReport, error)
}

// Scheduler runs every configured niche in order.
type Scheduler struct {
	runner NicheRunner
	delay  time.Duration
	logger *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a Scheduler. A zero or negative delay disables the
// pause between niches.
func NewScheduler(runner NicheRunner, delay time.Duration, logger *log.Logger) *Scheduler {
	if delay < 0 {
		delay = 0
	}
	return &Scheduler{
		runner: runner,
		delay:  delay,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// RunAll runs niches in order, sleeping between them when withDelay is set.
// A niche that fails on its own does not stop the others; a ledger
// initialization failure or cancellation does, and is returned together with
// the reports gathered so far.
func (s *Scheduler) RunAll(ctx context.Context, niches []domain.NicheConfig, withDelay bool) ([]RunReport, error) {
	reports := make([]RunReport, 0, len(niches))

	for i, niche := range niches {
		s.logger.Info("running niche", "niche", niche.Name, "index", i+1, "of", len(niches))

		report, err := s.runner.Run(ctx, niche)
		reports = append(reports, report)
		switch {
		case err == nil:
		case errors.Is(err, ErrLedgerInit):
			s.logger.Error("aborting run", "niche", niche.Name, "err", err)
			return reports, err
		case ctx.Err() != nil:
			return reports, ctx.Err()
		default:
			s.logger.Error("niche failed", "niche", niche.Name, "err", err)
		}

		if withDelay && s.delay > 0 && i < len(niches)-1 {
			s.logger.Info("pausing before next niche", "delay", s.delay, "next", niches[i+1].Name)
			if err := s.sleep(ctx, s.delay); err != nil {
				return reports, err
			}
		}
	}

	total := 0
	for _, r := range reports {
		total += r.Committed
	}
	s.logger.Info("all niches finished", "niches", len(niches), "committed", total)
	return reports, nil
}
