// Package harvest runs the batch midnight harvest over all active vaults.
package harvest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/services/vaults"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

const defaultWorkers = 8

// Failure records one vault that could not be harvested.
type Failure struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
	Error string `json:"error"`
}

// Summary is the result of one harvest run.
type Summary struct {
	RunID        string                  `json:"run_id"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   time.Time               `json:"finished_at"`
	Succeeded    int                     `json:"succeeded"`
	Failed       int                     `json:"failed"`
	TotalGross   uint64                  `json:"total_gross"`
	TotalNet     uint64                  `json:"total_net"`
	TotalCharity uint64                  `json:"total_charity"`
	Outcomes     []vaults.HarvestOutcome `json:"outcomes,omitempty"`
	Failures     []Failure               `json:"failures,omitempty"`
}

// Service fans a harvest run out over the active vaults with a bounded
// worker pool. Per-vault failures are collected and never abort the run.
type Service struct {
	ledger  *vaults.Service
	log     *logger.Logger
	workers int
	now     func() time.Time
}

// New constructs the harvest service.
func New(ledger *vaults.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("harvest")
	}
	return &Service{
		ledger:  ledger,
		log:     log,
		workers: defaultWorkers,
		now:     time.Now,
	}
}

// WithWorkers overrides the worker pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Run harvests every active vault as of the given time. A zero time means
// now. Run refuses to start while the protocol is paused.
func (s *Service) Run(ctx context.Context, at time.Time) (Summary, error) {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	summary := Summary{RunID: uuid.NewString(), StartedAt: s.now().UTC()}
	runLog := s.log.WithField("run_id", summary.RunID)

	cfg, err := s.ledger.Config(ctx)
	if err != nil {
		return Summary{}, err
	}
	if cfg.Paused {
		return Summary{}, protocol.ErrPaused
	}

	accounts, err := s.ledger.ActiveVaults(ctx)
	if err != nil {
		return Summary{}, err
	}
	runLog.WithField("vaults", len(accounts)).Info("harvest run started")

	type result struct {
		outcome vaults.HarvestOutcome
		failure *Failure
	}

	jobs := make(chan int)
	results := make(chan result, len(accounts))

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				acct := accounts[idx]
				outcome, err := s.ledger.HarvestVault(ctx, acct.Owner, acct.Asset, at)
				if err != nil {
					// Vaults drained or paused mid-run are skipped, not failed.
					if errors.Is(err, protocol.ErrVaultInactive) {
						continue
					}
					results <- result{failure: &Failure{Owner: acct.Owner, Asset: acct.Asset, Error: err.Error()}}
					continue
				}
				results <- result{outcome: outcome}
			}
		}()
	}

	for idx := range accounts {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return Summary{}, ctx.Err()
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		if res.failure != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, *res.failure)
			continue
		}
		summary.Succeeded++
		summary.TotalGross += res.outcome.GrossReward
		summary.TotalNet += res.outcome.NetReward
		summary.TotalCharity += res.outcome.Charity
		summary.Outcomes = append(summary.Outcomes, res.outcome)
	}
	summary.FinishedAt = s.now().UTC()

	runLog.WithField("succeeded", summary.Succeeded).
		WithField("failed", summary.Failed).
		WithField("gross", summary.TotalGross).
		WithField("net", summary.TotalNet).
		Info("harvest run finished")
	return summary, nil
}
