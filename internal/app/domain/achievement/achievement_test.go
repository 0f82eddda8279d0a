package achievement

import "testing"

func TestUnlockIsIdempotent(t *testing.T) {
	s := &State{Owner: "owner-1"}

	pts := s.Unlock(FirstBlood)
	if pts != 10 {
		t.Fatalf("first unlock points = %d, want 10", pts)
	}
	if !s.Has(FirstBlood) {
		t.Fatalf("expected FirstBlood to be set")
	}

	if again := s.Unlock(FirstBlood); again != 0 {
		t.Fatalf("second unlock points = %d, want 0", again)
	}
	if s.Points != 10 {
		t.Fatalf("points = %d, want 10", s.Points)
	}
	if s.CountUnlocked() != 1 {
		t.Fatalf("unlocked count = %d, want 1", s.CountUnlocked())
	}
}

func TestRankFromPointsThresholds(t *testing.T) {
	cases := []struct {
		points uint32
		want   Rank
	}{
		{0, Ghost},
		{99, Ghost},
		{100, Specter},
		{299, Specter},
		{300, Wraith},
		{599, Wraith},
		{600, Phantom},
		{999, Phantom},
		{1000, Reaper},
		{5000, Reaper},
	}
	for _, tc := range cases {
		if got := RankFromPoints(tc.points); got != tc.want {
			t.Fatalf("RankFromPoints(%d) = %s, want %s", tc.points, got.Name(), tc.want.Name())
		}
	}
}

func TestRankBonusBps(t *testing.T) {
	cases := []struct {
		rank Rank
		want uint16
	}{
		{Ghost, 10_000},
		{Specter, 10_100},
		{Wraith, 10_250},
		{Phantom, 10_500},
		{Reaper, 11_000},
	}
	for _, tc := range cases {
		if got := tc.rank.BonusBps(); got != tc.want {
			t.Fatalf("%s bonus = %d, want %d", tc.rank.Name(), got, tc.want)
		}
	}
}

func TestUnlockUpdatesRankTier(t *testing.T) {
	s := &State{Owner: "owner-2"}

	// Eternal alone is worth 200 points, enough for Specter.
	s.Unlock(Eternal)
	if s.CurrentRank() != Specter {
		t.Fatalf("rank = %s, want Specter", s.CurrentRank().Name())
	}
	if s.RankTier != uint8(Specter) {
		t.Fatalf("rank tier cache = %d, want %d", s.RankTier, Specter)
	}
}

func TestCataloguePointTotals(t *testing.T) {
	var total uint32
	for i := 0; i < Count; i++ {
		total += Achievement(i).Points()
	}
	// Sum of all 27 achievement point values.
	if total != 1695 {
		t.Fatalf("total points = %d, want 1695", total)
	}
	if Count != 27 {
		t.Fatalf("catalogue size = %d, want 27", Count)
	}
}

func TestAchievementNames(t *testing.T) {
	for i := 0; i < Count; i++ {
		if Achievement(i).Name() == "" {
			t.Fatalf("achievement %d has no name", i)
		}
	}
	if GrimReaper.Name() != "Grim Reaper" {
		t.Fatalf("unexpected name %q", GrimReaper.Name())
	}
}
