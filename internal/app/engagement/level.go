package engagement

import (
	"fmt"
	"sort"

	"github.com/tutu-network/rewards/internal/domain"
)

// LevelTable maps cumulative points to a level.
// The table is ordered and contiguous: level i+1 starts one point after
// level i ends, the first level starts at 0 and the last is unbounded.
// Those properties are checked once in NewLevelTable, never per lookup.
type LevelTable struct {
	levels []domain.Level
}

// NewLevelTable validates levels and builds a table.
// A last level with MaxPoints <= 0 is treated as unbounded.
func NewLevelTable(levels []domain.Level) (*LevelTable, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: level table is empty", domain.ErrConfig)
	}

	table := make([]domain.Level, len(levels))
	copy(table, levels)

	last := len(table) - 1
	if table[last].MaxPoints <= 0 {
		table[last].MaxPoints = domain.Unbounded
	}

	if table[0].MinPoints != 0 {
		return nil, fmt.Errorf("%w: first level must start at 0 points, starts at %d", domain.ErrConfig, table[0].MinPoints)
	}
	for i, lvl := range table {
		if lvl.Level != i+1 {
			return nil, fmt.Errorf("%w: level at position %d is numbered %d, want %d", domain.ErrConfig, i, lvl.Level, i+1)
		}
		if lvl.MaxPoints < lvl.MinPoints {
			return nil, fmt.Errorf("%w: level %d max_points %d < min_points %d", domain.ErrConfig, lvl.Level, lvl.MaxPoints, lvl.MinPoints)
		}
		if i == last {
			break
		}
		if lvl.MaxPoints == domain.Unbounded {
			return nil, fmt.Errorf("%w: only the last level may be unbounded (level %d)", domain.ErrConfig, lvl.Level)
		}
		if next := table[i+1]; next.MinPoints != lvl.MaxPoints+1 {
			return nil, fmt.Errorf("%w: gap between level %d (max %d) and level %d (min %d)",
				domain.ErrConfig, lvl.Level, lvl.MaxPoints, next.Level, next.MinPoints)
		}
	}
	if table[last].MaxPoints != domain.Unbounded {
		return nil, fmt.Errorf("%w: last level %d must be unbounded", domain.ErrConfig, table[last].Level)
	}

	return &LevelTable{levels: table}, nil
}

// Levels returns a copy of the table.
func (t *LevelTable) Levels() []domain.Level {
	out := make([]domain.Level, len(t.levels))
	copy(out, t.levels)
	return out
}

// LevelFor returns the level containing points. Negative points map to
// the first level.
func (t *LevelTable) LevelFor(points int64) domain.Level {
	if points <= 0 {
		return t.levels[0]
	}
	i := sort.Search(len(t.levels), func(i int) bool {
		return t.levels[i].MaxPoints >= points
	})
	if i == len(t.levels) {
		i = len(t.levels) - 1
	}
	return t.levels[i]
}

// ByNumber returns the level numbered n.
func (t *LevelTable) ByNumber(n int) (domain.Level, bool) {
	if n < 1 || n > len(t.levels) {
		return domain.Level{}, false
	}
	return t.levels[n-1], true
}

// NextLevel returns the level after current, or false at the top.
func (t *LevelTable) NextLevel(current domain.Level) (domain.Level, bool) {
	return t.ByNumber(current.Level + 1)
}

// DetectLevelChange returns the level reached at newPoints when it differs
// from the level at oldPoints, or nil. When moving up, crossed lists every
// level entered in order (a single large award can skip levels).
func (t *LevelTable) DetectLevelChange(oldPoints, newPoints int64) (*domain.Level, []domain.Level) {
	from := t.LevelFor(oldPoints)
	to := t.LevelFor(newPoints)
	if from.Level == to.Level {
		return nil, nil
	}

	var crossed []domain.Level
	for n := from.Level + 1; n <= to.Level; n++ {
		crossed = append(crossed, t.levels[n-1])
	}
	return &to, crossed
}

// PointsToNext returns points remaining until the next level (0 at the top).
func (t *LevelTable) PointsToNext(points int64) int64 {
	next, ok := t.NextLevel(t.LevelFor(points))
	if !ok {
		return 0
	}
	if points < 0 {
		points = 0
	}
	return next.MinPoints - points
}

// ProgressPct returns progress toward the next level (0.0–100.0).
func (t *LevelTable) ProgressPct(points int64) float64 {
	cur := t.LevelFor(points)
	if cur.MaxPoints == domain.Unbounded {
		return 100.0
	}
	if points < 0 {
		points = 0
	}
	span := cur.MaxPoints - cur.MinPoints + 1
	pct := float64(points-cur.MinPoints) / float64(span) * 100.0
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}
