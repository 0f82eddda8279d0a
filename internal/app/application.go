package app

import (
	"context"
	"fmt"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/services/achievements"
	harvestsvc "github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/services/harvest"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/services/leaderboards"
	vaultsvc "github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/services/vaults"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage/memory"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/system"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Config       storage.ConfigStore
	Vaults       storage.VaultStore
	Leaderboard  storage.LeaderboardStore
	Achievements storage.AchievementStore
	BoostPasses  storage.BoostPassStore
}

// Options tunes optional application behaviour.
type Options struct {
	// HarvestSchedule is a cron expression for the midnight harvest.
	// Empty means the default "@midnight"; "off" disables the scheduler.
	HarvestSchedule string

	// FundsGateway, when set, replaces the ledger's no-op value mover.
	FundsGateway vaultsvc.FundsGateway
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Vaults       *vaultsvc.Service
	Leaderboards *leaderboards.Service
	Achievements *achievements.Service
	Harvest      *harvestsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Config == nil {
		stores.Config = mem
	}
	if stores.Vaults == nil {
		stores.Vaults = mem
	}
	if stores.Leaderboard == nil {
		stores.Leaderboard = mem
	}
	if stores.Achievements == nil {
		stores.Achievements = mem
	}
	if stores.BoostPasses == nil {
		stores.BoostPasses = mem
	}

	manager := system.NewManager()

	vaultService := vaultsvc.New(stores.Config, stores.Vaults, stores.Leaderboard, stores.BoostPasses, log)
	if opts.FundsGateway != nil {
		vaultService.AttachFundsGateway(opts.FundsGateway)
	}
	achievementService := achievements.New(stores.Achievements, log)
	vaultService.AttachAchievementSink(achievementService)
	leaderboardService := leaderboards.New(stores.Leaderboard, log)
	harvestService := harvestsvc.New(vaultService, log)

	for _, name := range []string{"vaults", "leaderboards", "achievements"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	if opts.HarvestSchedule != "off" {
		scheduler := harvestsvc.NewScheduler(harvestService, log).WithSchedule(opts.HarvestSchedule)
		if err := manager.Register(scheduler); err != nil {
			return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
		}
	} else {
		log.Warn("harvest scheduler disabled")
	}

	return &Application{
		manager:      manager,
		log:          log,
		Vaults:       vaultService,
		Leaderboards: leaderboardService,
		Achievements: achievementService,
		Harvest:      harvestService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
