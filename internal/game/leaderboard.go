package game

import (
	"math"
	"sort"
	"time"
)

// survivalQuantum buckets survival times so differences under 50ms do
// not decide rankings, kills break those near-ties instead.
const survivalQuantum = 0.05

// BuildLeaderboard ranks players for snapshots and final standings.
// Sort keys in order: survival time (50ms buckets), kills, score.
// The stable sort keeps join order for full ties. dst is reused
// across ticks to avoid per-tick allocations.
func BuildLeaderboard(players []*Player, now time.Time, dst []LeaderboardEntry) []LeaderboardEntry {
	dst = dst[:0]
	for _, p := range players {
		dst = append(dst, LeaderboardEntry{
			ID:           p.ID,
			Name:         p.Name,
			Kills:        p.Kills,
			Lives:        p.Lives,
			Alive:        p.Alive,
			Score:        p.Score(),
			SurvivalTime: EffectiveSurvival(p, now),
		})
	}

	sort.SliceStable(dst, func(i, j int) bool {
		return leaderboardLess(dst[i], dst[j])
	})
	return dst
}

// EffectiveSurvival is the player's accumulated survival plus the
// current life, so mid-match rankings move in real time.
func EffectiveSurvival(p *Player, now time.Time) float64 {
	s := p.SurvivalTime
	if p.Alive && !p.AliveSince.IsZero() {
		s += now.Sub(p.AliveSince).Seconds()
	}
	return Round2(s)
}

func leaderboardLess(a, b LeaderboardEntry) bool {
	qa := survivalBucket(a.SurvivalTime)
	qb := survivalBucket(b.SurvivalTime)
	if qa != qb {
		return qa > qb
	}
	if a.Kills != b.Kills {
		return a.Kills > b.Kills
	}
	return a.Score > b.Score
}

// survivalBucket quantizes to 50ms so the comparator stays transitive.
func survivalBucket(s float64) int64 {
	return int64(math.Round(s / survivalQuantum))
}

// LeaderboardDraw reports whether the top two rows are inseparable on
// every ranking key, which ends the match in a draw.
func LeaderboardDraw(rows []LeaderboardEntry) bool {
	if len(rows) < 2 {
		return false
	}
	a, b := rows[0], rows[1]
	return survivalBucket(a.SurvivalTime) == survivalBucket(b.SurvivalTime) &&
		a.Kills == b.Kills && a.Score == b.Score
}
