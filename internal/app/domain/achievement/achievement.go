// Package achievement implements the 27-flag achievement catalogue, rank
// tiers and the per-owner achievement state bitset.
package achievement

import (
	"math/bits"
	"time"
)

// Achievement identifies a single flag by its bit position in the unlocked
// bitset.
type Achievement uint8

const (
	// Deposit milestones.
	FirstBlood Achievement = iota
	SoulStarter
	GraveDigger
	CryptKeeper
	Necromancer

	// Cumulative soul milestones.
	SoulCollector
	SoulReaper
	SoulMaster
	DeathLord
	GrimReaper

	// Compound milestones and time-of-day flags.
	NightOwl
	EarlyBird
	CompoundKing
	YieldFarmer
	DefiDegen

	// Midnight harvest participation.
	WitchingHour
	Haunted
	Possessed
	Eternal

	// Special conditions.
	ReapersChosen
	DiamondHands
	OgSoul
	Whale
	CharityChampion

	// Consecutive-day compounding streaks.
	HotStreak
	OnFire
	Unstoppable

	// Count is the number of defined achievements.
	Count = int(Unstoppable) + 1
)

var points = [Count]uint32{
	FirstBlood:  10,
	SoulStarter: 20,
	GraveDigger: 40,
	CryptKeeper: 70,
	Necromancer: 100,

	SoulCollector: 15,
	SoulReaper:    30,
	SoulMaster:    60,
	DeathLord:     100,
	GrimReaper:    150,

	NightOwl:     25,
	EarlyBird:    25,
	CompoundKing: 20,
	YieldFarmer:  35,
	DefiDegen:    50,

	WitchingHour: 20,
	Haunted:      40,
	Possessed:    80,
	Eternal:      200,

	ReapersChosen:   100,
	DiamondHands:    75,
	OgSoul:          100,
	Whale:           80,
	CharityChampion: 60,

	HotStreak:   30,
	OnFire:      60,
	Unstoppable: 100,
}

var names = [Count]string{
	FirstBlood:  "First Blood",
	SoulStarter: "Soul Starter",
	GraveDigger: "Grave Digger",
	CryptKeeper: "Crypt Keeper",
	Necromancer: "Necromancer",

	SoulCollector: "Soul Collector",
	SoulReaper:    "Soul Reaper",
	SoulMaster:    "Soul Master",
	DeathLord:     "Death Lord",
	GrimReaper:    "Grim Reaper",

	NightOwl:     "Night Owl",
	EarlyBird:    "Early Bird",
	CompoundKing: "Compound King",
	YieldFarmer:  "Yield Farmer",
	DefiDegen:    "DeFi Degen",

	WitchingHour: "Witching Hour",
	Haunted:      "Haunted",
	Possessed:    "Possessed",
	Eternal:      "Eternal",

	ReapersChosen:   "Reaper's Chosen",
	DiamondHands:    "Diamond Hands",
	OgSoul:          "OG Soul",
	Whale:           "Whale",
	CharityChampion: "Charity Champion",

	HotStreak:   "Hot Streak",
	OnFire:      "On Fire",
	Unstoppable: "Unstoppable",
}

// Points returns the fixed point value awarded when this achievement
// unlocks.
func (a Achievement) Points() uint32 {
	if int(a) >= Count {
		return 0
	}
	return points[a]
}

// Name returns the display name.
func (a Achievement) Name() string {
	if int(a) >= Count {
		return "Unknown"
	}
	return names[a]
}

// Rank is the tier derived from accumulated achievement points.
type Rank uint8

const (
	Ghost   Rank = 0 // 0-99 points
	Specter Rank = 1 // 100-299 points
	Wraith  Rank = 2 // 300-599 points
	Phantom Rank = 3 // 600-999 points
	Reaper  Rank = 4 // 1000+ points
)

// RankFromPoints maps points to a tier with >= comparisons, saturating at
// Reaper.
func RankFromPoints(points uint32) Rank {
	switch {
	case points >= 1000:
		return Reaper
	case points >= 600:
		return Phantom
	case points >= 300:
		return Wraith
	case points >= 100:
		return Specter
	default:
		return Ghost
	}
}

// Name returns the tier's display name.
func (r Rank) Name() string {
	switch r {
	case Reaper:
		return "Reaper"
	case Phantom:
		return "Phantom"
	case Wraith:
		return "Wraith"
	case Specter:
		return "Specter"
	default:
		return "Ghost"
	}
}

// BonusBps is the tier's display bonus multiplier in basis points
// (10000 = 1.00x). The ledger does not apply it to compounding.
func (r Rank) BonusBps() uint16 {
	switch r {
	case Reaper:
		return 11_000
	case Phantom:
		return 10_500
	case Wraith:
		return 10_250
	case Specter:
		return 10_100
	default:
		return 10_000
	}
}

// State is the per-owner achievement record. Unlocked bits and points are
// monotonic; evaluation never clears a bit or reduces points.
type State struct {
	Owner                string    `json:"owner"`
	Unlocked             uint64    `json:"unlocked"`
	Points               uint32    `json:"points"`
	RankTier             uint8     `json:"rank_tier"`
	FirstDepositTime     int64     `json:"first_deposit_time"`
	MidnightHarvestCount uint32    `json:"midnight_harvest_count"`
	HighestCompound      uint64    `json:"highest_compound"`
	TotalCompounds       uint32    `json:"total_compounds"`
	CharityDonated       uint64    `json:"charity_donated"`
	DepositorIndex       uint32    `json:"depositor_index"`
	LastCompoundDay      int64     `json:"last_compound_day"`
	StreakDays           uint32    `json:"streak_days"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Has reports whether the achievement bit is set.
func (s *State) Has(a Achievement) bool {
	return s.Unlocked&(1<<uint(a)) != 0
}

// Unlock sets the achievement bit and returns the points earned, or zero
// if the bit was already set. Points saturate rather than wrap.
func (s *State) Unlock(a Achievement) uint32 {
	bit := uint64(1) << uint(a)
	if s.Unlocked&bit != 0 {
		return 0
	}
	s.Unlocked |= bit

	pts := a.Points()
	if s.Points > ^uint32(0)-pts {
		s.Points = ^uint32(0)
	} else {
		s.Points += pts
	}
	s.RankTier = uint8(RankFromPoints(s.Points))
	return pts
}

// CountUnlocked returns how many achievements are unlocked.
func (s *State) CountUnlocked() int {
	return bits.OnesCount64(s.Unlocked)
}

// CurrentRank derives the tier from points.
func (s *State) CurrentRank() Rank {
	return RankFromPoints(s.Points)
}
