package vaults

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, clock *testClock) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, store, store, nil)
	if clock != nil {
		svc.WithClock(clock.Now)
	}
	if _, err := svc.Initialize(context.Background(), protocol.Config{Authority: "admin"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return svc, store
}

type fakeGateway struct {
	mu        sync.Mutex
	collected int
	paid      int
	failPay   bool
}

func (g *fakeGateway) CollectDeposit(context.Context, string, string, uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collected++
	return nil
}

func (g *fakeGateway) PayWithdrawal(context.Context, string, string, uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPay {
		return errors.New("custodian unavailable")
	}
	g.paid++
	return nil
}

func (g *fakeGateway) DonateCharity(context.Context, string, uint64) error { return nil }

func TestInitializeTwiceFails(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Initialize(context.Background(), protocol.Config{Authority: "other"})
	if !errors.Is(err, protocol.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestCreateVaultRejectsZeroAmount(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.CreateVault(context.Background(), "owner-1", "GRIM", 0)
	if !errors.Is(err, protocol.ErrInvalidDepositAmount) {
		t.Fatalf("expected ErrInvalidDepositAmount, got %v", err)
	}
}

func TestCreateVaultRejectsDuplicate(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 500); !errors.Is(err, protocol.ErrVaultExists) {
		t.Fatalf("expected ErrVaultExists, got %v", err)
	}
}

func TestCreateVaultUpdatesAggregates(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}

	cfg, err := store.GetConfig(ctx)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.TotalTVL != 1000 {
		t.Fatalf("tvl = %d, want 1000", cfg.TotalTVL)
	}

	entry, err := store.GetLeaderboardEntry(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.TVL != 1000 {
		t.Fatalf("leaderboard tvl = %d, want 1000", entry.TVL)
	}
}

func TestCreateVaultDuplicateCollectsNothing(t *testing.T) {
	svc, _ := newTestService(t, nil)
	gw := &fakeGateway{}
	svc.AttachFundsGateway(gw)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 500); !errors.Is(err, protocol.ErrVaultExists) {
		t.Fatalf("expected ErrVaultExists, got %v", err)
	}

	// The conflicting create is rejected before any funds move.
	if gw.collected != 1 {
		t.Fatalf("collected %d deposits, want 1", gw.collected)
	}
	if gw.paid != 0 {
		t.Fatalf("paid %d refunds, want 0", gw.paid)
	}
}

func TestWithdrawRecreditsOnPayoutFailure(t *testing.T) {
	svc, store := newTestService(t, nil)
	gw := &fakeGateway{}
	svc.AttachFundsGateway(gw)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}

	gw.failPay = true
	if _, err := svc.Withdraw(ctx, "owner-1", "GRIM", 400); err == nil {
		t.Fatalf("expected payout failure to surface")
	}

	// The debited amount is restored everywhere when the payout fails.
	acct, err := store.GetVault(ctx, "owner-1", "GRIM")
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if acct.Balance != 1000 || !acct.Active {
		t.Fatalf("balance = %d active = %v, want 1000/true", acct.Balance, acct.Active)
	}
	cfg, _ := store.GetConfig(ctx)
	if cfg.TotalTVL != 1000 {
		t.Fatalf("tvl = %d, want 1000", cfg.TotalTVL)
	}
	entry, _ := store.GetLeaderboardEntry(ctx, "owner-1")
	if entry.TVL != 1000 {
		t.Fatalf("leaderboard tvl = %d, want 1000", entry.TVL)
	}

	gw.failPay = false
	if _, err := svc.Withdraw(ctx, "owner-1", "GRIM", 400); err != nil {
		t.Fatalf("withdraw after recovery: %v", err)
	}
}

func TestCreateVaultBlockedWhilePaused(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.SetPaused(ctx, "admin", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); !errors.Is(err, protocol.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
}

func TestSetPausedRequiresAuthority(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.SetPaused(context.Background(), "intruder", true); !errors.Is(err, protocol.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestWithdrawTooMuchLeavesStateUnchanged(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Withdraw(ctx, "owner-1", "GRIM", 1001); !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	acct, err := store.GetVault(ctx, "owner-1", "GRIM")
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if acct.Balance != 1000 {
		t.Fatalf("balance = %d, want 1000", acct.Balance)
	}
	cfg, _ := store.GetConfig(ctx)
	if cfg.TotalTVL != 1000 {
		t.Fatalf("tvl = %d, want 1000", cfg.TotalTVL)
	}
}

func TestWithdrawDoesNotCompoundFirst(t *testing.T) {
	clock := newTestClock(time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1_000_000); err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(180 * 24 * time.Hour)
	acct, err := svc.Withdraw(ctx, "owner-1", "GRIM", 400_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// Six months of pending rewards are not folded in by a withdrawal.
	if acct.Balance != 600_000 {
		t.Fatalf("balance = %d, want 600000", acct.Balance)
	}
}

func TestWithdrawToZeroDeactivates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	acct, err := svc.Withdraw(ctx, "owner-1", "GRIM", 1000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if acct.Active {
		t.Fatalf("expected drained vault to be inactive")
	}

	if _, err := svc.Compound(ctx, "owner-1", "GRIM"); !errors.Is(err, protocol.ErrVaultInactive) {
		t.Fatalf("expected ErrVaultInactive, got %v", err)
	}
}

func TestWithdrawAllowedWhilePaused(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SetPaused(ctx, "admin", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.Withdraw(ctx, "owner-1", "GRIM", 400); err != nil {
		t.Fatalf("withdraw while paused: %v", err)
	}
}

func TestCompoundOneYearAtBaseTier(t *testing.T) {
	clock := newTestClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc, store := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 50_000_000); err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(time.Duration(protocol.SecondsPerYear) * time.Second)
	acct, err := svc.Compound(ctx, "owner-1", "GRIM")
	if err != nil {
		t.Fatalf("compound: %v", err)
	}

	// 50,000,000 raw units is below the 10k whole-token tier, so the base
	// 500 bps rate applies: one year earns 2,500,000.
	if acct.Balance != 52_500_000 {
		t.Fatalf("balance = %d, want 52500000", acct.Balance)
	}
	if acct.TotalSoulsHarvested != 2_500_000 {
		t.Fatalf("souls = %d, want 2500000", acct.TotalSoulsHarvested)
	}

	cfg, _ := store.GetConfig(ctx)
	if cfg.TotalTVL != 52_500_000 {
		t.Fatalf("tvl = %d, want 52500000", cfg.TotalTVL)
	}
	entry, _ := store.GetLeaderboardEntry(ctx, "owner-1")
	if entry.TVL != 52_500_000 {
		t.Fatalf("leaderboard tvl = %d, want 52500000", entry.TVL)
	}
}

func TestCompoundZeroElapsedIsIdempotent(t *testing.T) {
	clock := newTestClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1_000_000); err != nil {
		t.Fatalf("create: %v", err)
	}

	acct, err := svc.Compound(ctx, "owner-1", "GRIM")
	if err != nil {
		t.Fatalf("compound: %v", err)
	}
	if acct.Balance != 1_000_000 {
		t.Fatalf("balance = %d, want 1000000", acct.Balance)
	}
}

func TestCompoundDoublesWithBoostPass(t *testing.T) {
	clock := newTestClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	run := func(withPass bool) uint64 {
		svc, _ := newTestService(t, clock)
		if withPass {
			if err := svc.IssueBoostPass(ctx, "admin", "owner-1"); err != nil {
				t.Fatalf("issue pass: %v", err)
			}
		}
		if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 50_000_000); err != nil {
			t.Fatalf("create: %v", err)
		}
		local := newTestClock(clock.Now())
		svc.WithClock(local.Now)
		local.Advance(time.Duration(protocol.SecondsPerYear) * time.Second)
		acct, err := svc.Compound(ctx, "owner-1", "GRIM")
		if err != nil {
			t.Fatalf("compound: %v", err)
		}
		return acct.Balance - 50_000_000
	}

	plain := run(false)
	boosted := run(true)
	if boosted != plain*2 {
		t.Fatalf("boosted reward = %d, want %d", boosted, plain*2)
	}
}

func TestIssueBoostPassIsIdempotentPerOwner(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	if err := svc.IssueBoostPass(ctx, "admin", "owner-1"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.IssueBoostPass(ctx, "admin", "owner-1"); err != nil {
		t.Fatalf("reissue: %v", err)
	}

	cfg, _ := store.GetConfig(ctx)
	if cfg.BoostPassSupply != 1 {
		t.Fatalf("supply = %d, want 1", cfg.BoostPassSupply)
	}

	if err := svc.IssueBoostPass(ctx, "intruder", "owner-2"); !errors.Is(err, protocol.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestIssueBoostPassConcurrentlyTakesOneSlot(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.IssueBoostPass(ctx, "admin", "owner-1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
	}

	cfg, _ := store.GetConfig(ctx)
	if cfg.BoostPassSupply != 1 {
		t.Fatalf("supply = %d, want 1", cfg.BoostPassSupply)
	}
}

func TestCloseRequiresZeroBalance(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Close(ctx, "owner-1", "GRIM"); !errors.Is(err, protocol.ErrNonZeroBalance) {
		t.Fatalf("expected ErrNonZeroBalance, got %v", err)
	}

	if _, err := svc.Withdraw(ctx, "owner-1", "GRIM", 1000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := svc.Close(ctx, "owner-1", "GRIM"); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := store.GetVault(ctx, "owner-1", "GRIM"); err == nil {
		t.Fatalf("expected vault to be gone")
	}
	if _, err := store.GetLeaderboardEntry(ctx, "owner-1"); err == nil {
		t.Fatalf("expected leaderboard entry to be gone")
	}
}

func TestHarvestSplitsGrossReward(t *testing.T) {
	clock := newTestClock(time.Date(2025, 10, 30, 0, 0, 0, 0, time.UTC))
	svc, store := newTestService(t, clock)
	ctx := context.Background()

	// 20,000 at the base 500 bps rate for one year accrues exactly 1000.
	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", 20_000); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := clock.Now().Add(time.Duration(protocol.SecondsPerYear) * time.Second)
	outcome, err := svc.HarvestVault(ctx, "owner-1", "GRIM", at)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}

	if outcome.GrossReward != 1000 {
		t.Fatalf("gross = %d, want 1000", outcome.GrossReward)
	}
	if outcome.SoulTax != 130 || outcome.Charity != 10 || outcome.NetReward != 860 {
		t.Fatalf("unexpected split: %+v", outcome)
	}
	// Souls are earned on the gross reward.
	if outcome.SoulsEarned != 1000 {
		t.Fatalf("souls = %d, want 1000", outcome.SoulsEarned)
	}

	acct, _ := store.GetVault(ctx, "owner-1", "GRIM")
	if acct.Balance != 20_860 {
		t.Fatalf("balance = %d, want 20860", acct.Balance)
	}
	cfg, _ := store.GetConfig(ctx)
	if cfg.TotalTVL != 20_860 {
		t.Fatalf("tvl = %d, want 20860", cfg.TotalTVL)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	const initial = 1000
	const withdrawal = 7
	const attempts = 1000

	if _, err := svc.CreateVault(ctx, "owner-1", "GRIM", initial); err != nil {
		t.Fatalf("create: %v", err)
	}

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Withdraw(ctx, "owner-1", "GRIM", withdrawal); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	acct, err := store.GetVault(ctx, "owner-1", "GRIM")
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}

	want := uint64(initial - succeeded.Load()*withdrawal)
	if acct.Balance != want {
		t.Fatalf("balance = %d, want %d after %d withdrawals", acct.Balance, want, succeeded.Load())
	}

	cfg, _ := store.GetConfig(ctx)
	if cfg.TotalTVL != acct.Balance {
		t.Fatalf("tvl %d does not reconcile with balance %d", cfg.TotalTVL, acct.Balance)
	}
	entry, _ := store.GetLeaderboardEntry(ctx, "owner-1")
	if entry.TVL != acct.Balance {
		t.Fatalf("leaderboard tvl %d does not reconcile with balance %d", entry.TVL, acct.Balance)
	}
}
