package vault

import (
	"math"
	"math/big"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
)

// CompoundInput carries everything the accrual formula needs. The caller is
// responsible for supplying monotonic time; Elapsed below zero is rejected.
type CompoundInput struct {
	Balance      uint64
	APYBps       uint16
	BoostBps     uint16
	HasBoost     bool
	SoulsPerUnit uint64
	Elapsed      int64
}

// CompoundResult is the outcome of one accrual computation.
type CompoundResult struct {
	Reward      uint64
	SoulsEarned uint64
}

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

// ComputeCompound evaluates the time-based accrual formula
//
//	reward = floor(balance * apyBps * elapsed / (SECONDS_PER_YEAR * 10000))
//
// with wide intermediate math, doubles the reward for boost pass holders
// (BoostBps, 20000 by default) and derives soul points from the reward.
// Elapsed == 0 is a valid no-op; Elapsed < 0 means the caller's clock moved
// backwards and is rejected.
func ComputeCompound(in CompoundInput) (CompoundResult, error) {
	if in.Elapsed < 0 {
		return CompoundResult{}, protocol.ErrClockRegression
	}
	if in.Elapsed == 0 || in.Balance == 0 {
		return CompoundResult{}, nil
	}

	numerator := new(big.Int).SetUint64(in.Balance)
	numerator.Mul(numerator, new(big.Int).SetUint64(uint64(in.APYBps)))
	numerator.Mul(numerator, big.NewInt(in.Elapsed))

	denominator := new(big.Int).SetInt64(protocol.SecondsPerYear)
	denominator.Mul(denominator, new(big.Int).SetUint64(protocol.BasisPoints))

	reward := new(big.Int).Quo(numerator, denominator)

	if in.HasBoost {
		boost := uint64(in.BoostBps)
		if boost == 0 {
			boost = uint64(protocol.DefaultBoostMultiplierBps)
		}
		reward.Mul(reward, new(big.Int).SetUint64(boost))
		reward.Quo(reward, new(big.Int).SetUint64(protocol.BasisPoints))
	}

	if reward.Cmp(maxUint64) > 0 {
		return CompoundResult{}, protocol.ErrArithmeticOverflow
	}
	rewardU64 := reward.Uint64()

	if rewardU64 > math.MaxUint64-in.Balance {
		return CompoundResult{}, protocol.ErrArithmeticOverflow
	}

	souls := new(big.Int).SetUint64(rewardU64)
	souls.Mul(souls, new(big.Int).SetUint64(in.SoulsPerUnit))
	if souls.Cmp(maxUint64) > 0 {
		return CompoundResult{}, protocol.ErrArithmeticOverflow
	}

	return CompoundResult{Reward: rewardU64, SoulsEarned: souls.Uint64()}, nil
}

// SplitHarvest applies the midnight harvest tax split to a gross reward:
// 13% soul tax retained by the protocol, 1% charity share, remainder
// credited to the vault. Both cuts floor toward zero.
func SplitHarvest(reward uint64) (soulTax, charity, net uint64) {
	soulTax = mulDivBps(reward, protocol.SoulTaxBps)
	charity = mulDivBps(reward, protocol.CharityBps)
	net = reward - soulTax - charity
	return soulTax, charity, net
}

// mulDivBps computes value*bps/10000 without 64-bit overflow. The result is
// always <= value for bps < 10000, so it fits uint64.
func mulDivBps(value, bps uint64) uint64 {
	product := new(big.Int).SetUint64(value)
	product.Mul(product, new(big.Int).SetUint64(bps))
	product.Quo(product, new(big.Int).SetUint64(protocol.BasisPoints))
	return product.Uint64()
}
