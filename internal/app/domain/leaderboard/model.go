// Package leaderboard models the per-owner TVL ranking.
package leaderboard

import (
	"sort"
	"time"
)

// Entry aggregates an owner's open vault balances. Rank is an advisory
// display cache; the authoritative order is recomputed by Rank on every
// query.
type Entry struct {
	Owner string `json:"owner"`
	TVL   uint64 `json:"tvl"`
	Rank  uint32 `json:"rank"`

	// Seq is the insertion sequence assigned by the store, used to break
	// TVL ties deterministically.
	Seq       uint64    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rank orders entries by TVL descending, ties broken by insertion order,
// and stamps the computed rank on each entry. The input slice is sorted in
// place and returned for convenience.
func Rank(entries []Entry) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TVL != entries[j].TVL {
			return entries[i].TVL > entries[j].TVL
		}
		return entries[i].Seq < entries[j].Seq
	})
	for i := range entries {
		entries[i].Rank = uint32(i)
	}
	return entries
}
