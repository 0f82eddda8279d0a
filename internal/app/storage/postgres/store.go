package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/achievement"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/leaderboard"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/vault"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Counter
// updates (TVL, pass supply, depositor count) are single statements so they
// stay atomic on their own; multi-statement sequences run under Transact.
type Store struct {
	db *sql.DB
}

var _ storage.ConfigStore = (*Store)(nil)
var _ storage.VaultStore = (*Store)(nil)
var _ storage.LeaderboardStore = (*Store)(nil)
var _ storage.AchievementStore = (*Store)(nil)
var _ storage.BoostPassStore = (*Store)(nil)
var _ storage.Transactor = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is the query surface shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// q returns the transaction carried by ctx, or the bare handle.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// Transact runs fn inside a database transaction. Store methods called with
// the context passed to fn join the transaction; any error rolls the whole
// sequence back. Nested calls reuse the enclosing transaction.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- ConfigStore ------------------------------------------------------------

func (s *Store) InitConfig(ctx context.Context, cfg protocol.Config) (protocol.Config, error) {
	now := time.Now().UTC()
	cfg.ApplyDefaults()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	result, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO harvest_config (id, authority, base_apy_bps, boost_multiplier_bps, souls_per_unit,
			units_per_token, total_tvl, boost_pass_supply, depositor_count, paused, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, 0, 0, 0, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, cfg.Authority, int64(cfg.BaseAPYBps), int64(cfg.BoostMultiplierBps), int64(cfg.SoulsPerUnit),
		int64(cfg.UnitsPerToken), cfg.Paused, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return protocol.Config{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return protocol.Config{}, protocol.ErrAlreadyInitialized
	}
	return cfg, nil
}

func (s *Store) GetConfig(ctx context.Context) (protocol.Config, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT authority, base_apy_bps, boost_multiplier_bps, souls_per_unit, units_per_token,
			total_tvl, boost_pass_supply, paused, created_at, updated_at
		FROM harvest_config
		WHERE id = 1
	`)

	var (
		cfg                         protocol.Config
		baseAPY, boostBps           int64
		soulsPerUnit, unitsPerToken int64
		totalTVL, passSupply        int64
	)
	if err := row.Scan(&cfg.Authority, &baseAPY, &boostBps, &soulsPerUnit, &unitsPerToken,
		&totalTVL, &passSupply, &cfg.Paused, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return protocol.Config{}, fmt.Errorf("protocol config: %w", storage.ErrNotFound)
		}
		return protocol.Config{}, err
	}

	cfg.BaseAPYBps = uint16(baseAPY)
	cfg.BoostMultiplierBps = uint16(boostBps)
	cfg.SoulsPerUnit = uint64(soulsPerUnit)
	cfg.UnitsPerToken = uint64(unitsPerToken)
	cfg.TotalTVL = uint64(totalTVL)
	cfg.BoostPassSupply = uint16(passSupply)
	return cfg, nil
}

func (s *Store) UpdateConfig(ctx context.Context, cfg protocol.Config) (protocol.Config, error) {
	cfg.UpdatedAt = time.Now().UTC()

	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE harvest_config
		SET authority = $1, base_apy_bps = $2, boost_multiplier_bps = $3, souls_per_unit = $4,
			units_per_token = $5, paused = $6, updated_at = $7
		WHERE id = 1
	`, cfg.Authority, int64(cfg.BaseAPYBps), int64(cfg.BoostMultiplierBps), int64(cfg.SoulsPerUnit),
		int64(cfg.UnitsPerToken), cfg.Paused, cfg.UpdatedAt)
	if err != nil {
		return protocol.Config{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return protocol.Config{}, fmt.Errorf("protocol config: %w", storage.ErrNotFound)
	}
	return s.GetConfig(ctx)
}

func (s *Store) AddTVL(ctx context.Context, delta int64) (uint64, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		UPDATE harvest_config
		SET total_tvl = total_tvl + $1, updated_at = $2
		WHERE id = 1 AND total_tvl + $1 >= 0
		RETURNING total_tvl
	`, delta, time.Now().UTC())

	var total int64
	if err := row.Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("tvl update rejected for delta %d", delta)
		}
		return 0, err
	}
	return uint64(total), nil
}

func (s *Store) IncrementDepositorCount(ctx context.Context) (uint32, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		UPDATE harvest_config
		SET depositor_count = depositor_count + 1, updated_at = $1
		WHERE id = 1
		RETURNING depositor_count
	`, time.Now().UTC())

	var count int64
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("protocol config: %w", storage.ErrNotFound)
		}
		return 0, err
	}
	return uint32(count), nil
}

// --- VaultStore -------------------------------------------------------------

func (s *Store) CreateVault(ctx context.Context, acct vault.Account) (vault.Account, error) {
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	// A row left behind by a drained vault may be reused; an active vault
	// for the same pair is a conflict.
	result, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO harvest_vaults (owner, asset, balance, last_compound_time, total_souls, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner, asset) DO UPDATE
		SET balance = $3, last_compound_time = $4, total_souls = $5, active = $6, updated_at = $8
		WHERE NOT harvest_vaults.active
	`, acct.Owner, acct.Asset, int64(acct.Balance), acct.LastCompoundTime,
		int64(acct.TotalSoulsHarvested), acct.Active, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return vault.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return vault.Account{}, protocol.ErrVaultExists
	}
	return acct, nil
}

func (s *Store) UpdateVault(ctx context.Context, acct vault.Account) (vault.Account, error) {
	acct.UpdatedAt = time.Now().UTC()

	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE harvest_vaults
		SET balance = $3, last_compound_time = $4, total_souls = $5, active = $6, updated_at = $7
		WHERE owner = $1 AND asset = $2
	`, acct.Owner, acct.Asset, int64(acct.Balance), acct.LastCompoundTime,
		int64(acct.TotalSoulsHarvested), acct.Active, acct.UpdatedAt)
	if err != nil {
		return vault.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return vault.Account{}, fmt.Errorf("vault %s: %w", vault.Key(acct.Owner, acct.Asset), storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) GetVault(ctx context.Context, owner, asset string) (vault.Account, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT owner, asset, balance, last_compound_time, total_souls, active, created_at, updated_at
		FROM harvest_vaults
		WHERE owner = $1 AND asset = $2
	`, owner, asset)

	acct, err := scanVault(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vault.Account{}, fmt.Errorf("vault %s: %w", vault.Key(owner, asset), storage.ErrNotFound)
		}
		return vault.Account{}, err
	}
	return acct, nil
}

func (s *Store) ListVaults(ctx context.Context, owner string) ([]vault.Account, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT owner, asset, balance, last_compound_time, total_souls, active, created_at, updated_at
		FROM harvest_vaults
		WHERE owner = $1
		ORDER BY created_at
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVaults(rows)
}

func (s *Store) ListActiveVaults(ctx context.Context) ([]vault.Account, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT owner, asset, balance, last_compound_time, total_souls, active, created_at, updated_at
		FROM harvest_vaults
		WHERE active
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVaults(rows)
}

func (s *Store) DeleteVault(ctx context.Context, owner, asset string) error {
	result, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM harvest_vaults WHERE owner = $1 AND asset = $2
	`, owner, asset)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("vault %s: %w", vault.Key(owner, asset), storage.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner) (vault.Account, error) {
	var (
		acct           vault.Account
		balance, souls int64
	)
	if err := row.Scan(&acct.Owner, &acct.Asset, &balance, &acct.LastCompoundTime,
		&souls, &acct.Active, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return vault.Account{}, err
	}
	acct.Balance = uint64(balance)
	acct.TotalSoulsHarvested = uint64(souls)
	return acct, nil
}

func collectVaults(rows *sql.Rows) ([]vault.Account, error) {
	var result []vault.Account
	for rows.Next() {
		acct, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

// --- LeaderboardStore -------------------------------------------------------

func (s *Store) AddLeaderboardTVL(ctx context.Context, owner string, delta int64) (leaderboard.Entry, error) {
	now := time.Now().UTC()
	row := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO harvest_leaderboard (owner, tvl, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (owner) DO UPDATE
		SET tvl = harvest_leaderboard.tvl + $2, updated_at = $3
		RETURNING owner, tvl, seq, created_at, updated_at
	`, owner, delta, now)

	entry, err := scanLeaderboardEntry(row)
	if err != nil {
		return leaderboard.Entry{}, fmt.Errorf("leaderboard %s: %w", owner, err)
	}
	return entry, nil
}

func (s *Store) GetLeaderboardEntry(ctx context.Context, owner string) (leaderboard.Entry, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT owner, tvl, seq, created_at, updated_at
		FROM harvest_leaderboard
		WHERE owner = $1
	`, owner)

	entry, err := scanLeaderboardEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return leaderboard.Entry{}, fmt.Errorf("leaderboard %s: %w", owner, storage.ErrNotFound)
		}
		return leaderboard.Entry{}, err
	}
	return entry, nil
}

func (s *Store) ListLeaderboard(ctx context.Context) ([]leaderboard.Entry, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT owner, tvl, seq, created_at, updated_at
		FROM harvest_leaderboard
		ORDER BY tvl DESC, seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []leaderboard.Entry
	for rows.Next() {
		entry, err := scanLeaderboardEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) DeleteLeaderboardEntry(ctx context.Context, owner string) error {
	result, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM harvest_leaderboard WHERE owner = $1
	`, owner)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("leaderboard %s: %w", owner, storage.ErrNotFound)
	}
	return nil
}

func scanLeaderboardEntry(row rowScanner) (leaderboard.Entry, error) {
	var (
		entry    leaderboard.Entry
		tvl, seq int64
	)
	if err := row.Scan(&entry.Owner, &tvl, &seq, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return leaderboard.Entry{}, err
	}
	entry.TVL = uint64(tvl)
	entry.Seq = uint64(seq)
	return entry, nil
}

// --- AchievementStore -------------------------------------------------------

func (s *Store) CreateAchievementState(ctx context.Context, st achievement.State) (achievement.State, error) {
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO harvest_achievements (owner, unlocked, points, rank_tier, first_deposit_time,
			midnight_harvest_count, highest_compound, total_compounds, charity_donated,
			depositor_index, last_compound_day, streak_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, st.Owner, int64(st.Unlocked), int64(st.Points), int16(st.RankTier), st.FirstDepositTime,
		int64(st.MidnightHarvestCount), int64(st.HighestCompound), int64(st.TotalCompounds),
		int64(st.CharityDonated), int64(st.DepositorIndex), st.LastCompoundDay,
		int64(st.StreakDays), st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return achievement.State{}, err
	}
	return st, nil
}

func (s *Store) UpdateAchievementState(ctx context.Context, st achievement.State) (achievement.State, error) {
	st.UpdatedAt = time.Now().UTC()

	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE harvest_achievements
		SET unlocked = $2, points = $3, rank_tier = $4, first_deposit_time = $5,
			midnight_harvest_count = $6, highest_compound = $7, total_compounds = $8,
			charity_donated = $9, depositor_index = $10, last_compound_day = $11,
			streak_days = $12, updated_at = $13
		WHERE owner = $1
	`, st.Owner, int64(st.Unlocked), int64(st.Points), int16(st.RankTier), st.FirstDepositTime,
		int64(st.MidnightHarvestCount), int64(st.HighestCompound), int64(st.TotalCompounds),
		int64(st.CharityDonated), int64(st.DepositorIndex), st.LastCompoundDay,
		int64(st.StreakDays), st.UpdatedAt)
	if err != nil {
		return achievement.State{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return achievement.State{}, fmt.Errorf("achievement state %s: %w", st.Owner, storage.ErrNotFound)
	}
	return st, nil
}

func (s *Store) GetAchievementState(ctx context.Context, owner string) (achievement.State, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT owner, unlocked, points, rank_tier, first_deposit_time, midnight_harvest_count,
			highest_compound, total_compounds, charity_donated, depositor_index,
			last_compound_day, streak_days, created_at, updated_at
		FROM harvest_achievements
		WHERE owner = $1
	`, owner)

	var (
		st                            achievement.State
		unlocked, points              int64
		rankTier                      int16
		midnightCount, highest, total int64
		charity, depositorIdx, streak int64
	)
	if err := row.Scan(&st.Owner, &unlocked, &points, &rankTier, &st.FirstDepositTime,
		&midnightCount, &highest, &total, &charity, &depositorIdx,
		&st.LastCompoundDay, &streak, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return achievement.State{}, fmt.Errorf("achievement state %s: %w", owner, storage.ErrNotFound)
		}
		return achievement.State{}, err
	}

	st.Unlocked = uint64(unlocked)
	st.Points = uint32(points)
	st.RankTier = uint8(rankTier)
	st.MidnightHarvestCount = uint32(midnightCount)
	st.HighestCompound = uint64(highest)
	st.TotalCompounds = uint32(total)
	st.CharityDonated = uint64(charity)
	st.DepositorIndex = uint32(depositorIdx)
	st.StreakDays = uint32(streak)
	return st, nil
}

// --- BoostPassStore ---------------------------------------------------------

// GrantBoostPass inserts the pass row and takes a supply slot in one
// transaction, so a repeat grant consumes nothing and a cap hit leaves no
// orphaned pass behind.
func (s *Store) GrantBoostPass(ctx context.Context, owner string, limit uint64) (uint64, bool, error) {
	var (
		supply  int64
		granted bool
	)
	err := s.Transact(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		result, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO harvest_boost_passes (owner, granted_at)
			VALUES ($1, $2)
			ON CONFLICT (owner) DO NOTHING
		`, owner, now)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			row := s.q(ctx).QueryRowContext(ctx, `
				SELECT boost_pass_supply FROM harvest_config WHERE id = 1
			`)
			if err := row.Scan(&supply); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("protocol config: %w", storage.ErrNotFound)
				}
				return err
			}
			return nil
		}

		row := s.q(ctx).QueryRowContext(ctx, `
			UPDATE harvest_config
			SET boost_pass_supply = boost_pass_supply + 1, updated_at = $2
			WHERE id = 1 AND boost_pass_supply < $1
			RETURNING boost_pass_supply
		`, int64(limit), now)
		if err := row.Scan(&supply); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return protocol.ErrSupplyExhausted
			}
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return uint64(supply), granted, nil
}

func (s *Store) HasBoostPass(ctx context.Context, owner string) (bool, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM harvest_boost_passes WHERE owner = $1)
	`, owner)

	var has bool
	if err := row.Scan(&has); err != nil {
		return false, err
	}
	return has, nil
}
