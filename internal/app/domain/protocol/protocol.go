// Package protocol holds the process-wide vault configuration and the
// dynamic rate tier logic driven by total value locked.
package protocol

import "time"

// Boost pass issuance is hard-capped for the lifetime of the protocol.
const BoostPassSupplyCap uint16 = 1666

// Time constants used by reward accrual. A year is 365 days; leap years
// are deliberately ignored.
const (
	SecondsPerMinute int64 = 60
	SecondsPerHour   int64 = 60 * SecondsPerMinute
	SecondsPerDay    int64 = 24 * SecondsPerHour
	SecondsPerYear   int64 = 365 * SecondsPerDay
)

// BasisPoints is the divisor for bps-denominated rates (10000 = 100%).
const BasisPoints uint64 = 10_000

// Midnight harvest split, both applied to the gross reward.
const (
	SoulTaxBps uint64 = 1_300
	CharityBps uint64 = 100
)

// Defaults applied when Initialize receives zero values.
const (
	DefaultBaseAPYBps         uint16 = 1000
	DefaultBoostMultiplierBps uint16 = 20_000
	DefaultSoulsPerUnit       uint64 = 1
	// DefaultUnitsPerToken converts raw balance units to whole tokens for
	// rate tier lookup (one token = 1e9 smallest units).
	DefaultUnitsPerToken uint64 = 1_000_000_000
)

// Config is the singleton protocol configuration. TotalTVL and
// BoostPassSupply are running aggregates owned by the store; every balance
// mutation must move TotalTVL through the store's atomic counter discipline.
type Config struct {
	Authority          string    `json:"authority"`
	BaseAPYBps         uint16    `json:"base_apy_bps"`
	BoostMultiplierBps uint16    `json:"boost_multiplier_bps"`
	SoulsPerUnit       uint64    `json:"souls_per_unit"`
	UnitsPerToken      uint64    `json:"units_per_token"`
	TotalTVL           uint64    `json:"total_tvl"`
	BoostPassSupply    uint16    `json:"boost_pass_supply"`
	Paused             bool      `json:"paused"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ResolveAPYBps maps protocol-wide TVL, expressed in whole tokens, to an
// APY in basis points. Comparisons are >= so a tie takes the higher tier.
func ResolveAPYBps(tvlWholeTokens uint64) uint16 {
	switch {
	case tvlWholeTokens >= 100_000:
		return 1500
	case tvlWholeTokens >= 50_000:
		return 1200
	case tvlWholeTokens >= 10_000:
		return 800
	default:
		return 500
	}
}

// CurrentAPYBps resolves the dynamic APY for this config by scaling the raw
// TVL aggregate down to whole tokens first.
func (c *Config) CurrentAPYBps() uint16 {
	units := c.UnitsPerToken
	if units == 0 {
		units = DefaultUnitsPerToken
	}
	return ResolveAPYBps(c.TotalTVL / units)
}

// ApplyDefaults fills unset tunables with protocol defaults.
func (c *Config) ApplyDefaults() {
	if c.BaseAPYBps == 0 {
		c.BaseAPYBps = DefaultBaseAPYBps
	}
	if c.BoostMultiplierBps == 0 {
		c.BoostMultiplierBps = DefaultBoostMultiplierBps
	}
	if c.SoulsPerUnit == 0 {
		c.SoulsPerUnit = DefaultSoulsPerUnit
	}
	if c.UnitsPerToken == 0 {
		c.UnitsPerToken = DefaultUnitsPerToken
	}
}
