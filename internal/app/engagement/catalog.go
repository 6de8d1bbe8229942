package engagement

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/rewards/internal/domain"
)

//go:embed catalog.toml
var defaultCatalogTOML []byte

// Catalog is the static configuration the engine runs against: the level
// table, achievement and challenge definitions and streak milestones.
type Catalog struct {
	Levels       []domain.Level          `json:"levels" toml:"levels"`
	Milestones   []domain.Milestone      `json:"milestones" toml:"milestones"`
	Achievements []domain.AchievementDef `json:"achievements" toml:"achievements"`
	Challenges   []domain.ChallengeDef   `json:"challenges" toml:"challenges"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogTOML)
}

// LoadCatalog reads a catalog file. An empty path returns the default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog %s: %w", domain.ErrConfig, path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes TOML and validates the result.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %w", domain.ErrConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown catalog key %q", domain.ErrConfig, undecoded[0].String())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog and fills defaults (unbounded last level,
// common rarity, sorted milestones). Every problem is an ErrConfig.
func (c *Catalog) Validate() error {
	table, err := NewLevelTable(c.Levels)
	if err != nil {
		return err
	}
	c.Levels = table.Levels()

	rewardIDs := make(map[string]bool)
	for _, lvl := range c.Levels {
		for _, r := range lvl.Rewards {
			if r.ID == "" {
				return fmt.Errorf("%w: level %d has a reward without id", domain.ErrConfig, lvl.Level)
			}
			if rewardIDs[r.ID] {
				return fmt.Errorf("%w: duplicate reward id %q", domain.ErrConfig, r.ID)
			}
			rewardIDs[r.ID] = true
			switch r.Type {
			case domain.RewardPoints:
				if r.Value <= 0 {
					return fmt.Errorf("%w: points reward %q needs a positive value", domain.ErrConfig, r.ID)
				}
			case domain.RewardBadge, domain.RewardFeature, domain.RewardTitle:
			default:
				return fmt.Errorf("%w: reward %q has unknown type %q", domain.ErrConfig, r.ID, r.Type)
			}
			if r.ExpiresDays < 0 {
				return fmt.Errorf("%w: reward %q has negative expires_days", domain.ErrConfig, r.ID)
			}
		}
	}

	seenDays := make(map[int]bool)
	for _, m := range c.Milestones {
		if m.Days <= 0 {
			return fmt.Errorf("%w: milestone days must be positive, got %d", domain.ErrConfig, m.Days)
		}
		if m.Bonus < 0 {
			return fmt.Errorf("%w: milestone %d has negative bonus", domain.ErrConfig, m.Days)
		}
		if seenDays[m.Days] {
			return fmt.Errorf("%w: duplicate milestone %d", domain.ErrConfig, m.Days)
		}
		seenDays[m.Days] = true
	}
	sort.Slice(c.Milestones, func(i, j int) bool { return c.Milestones[i].Days < c.Milestones[j].Days })

	achievementIDs := make(map[string]bool)
	for i := range c.Achievements {
		a := &c.Achievements[i]
		if a.ID == "" {
			return fmt.Errorf("%w: achievement %d has no id", domain.ErrConfig, i)
		}
		if achievementIDs[a.ID] {
			return fmt.Errorf("%w: duplicate achievement id %q", domain.ErrConfig, a.ID)
		}
		achievementIDs[a.ID] = true
		if a.Points < 0 {
			return fmt.Errorf("%w: achievement %q has negative points", domain.ErrConfig, a.ID)
		}
		if a.Rarity == "" {
			a.Rarity = domain.RarityCommon
		}
		if !validRarity(a.Rarity) {
			return fmt.Errorf("%w: achievement %q has unknown rarity %q", domain.ErrConfig, a.ID, a.Rarity)
		}
		switch a.Rule.Kind {
		case domain.RuleManual:
		case domain.RuleThreshold:
			if !validMetric(a.Rule.Metric) {
				return fmt.Errorf("%w: achievement %q has unknown metric %q", domain.ErrConfig, a.ID, a.Rule.Metric)
			}
			if a.Rule.Target <= 0 {
				return fmt.Errorf("%w: achievement %q needs a positive target", domain.ErrConfig, a.ID)
			}
		default:
			return fmt.Errorf("%w: achievement %q has unknown rule kind %q", domain.ErrConfig, a.ID, a.Rule.Kind)
		}
	}

	challengeIDs := make(map[string]bool)
	for _, ch := range c.Challenges {
		if ch.ID == "" {
			return fmt.Errorf("%w: challenge without id", domain.ErrConfig)
		}
		if challengeIDs[ch.ID] {
			return fmt.Errorf("%w: duplicate challenge id %q", domain.ErrConfig, ch.ID)
		}
		challengeIDs[ch.ID] = true
		if ch.MaxProgress <= 0 {
			return fmt.Errorf("%w: challenge %q needs a positive max_progress", domain.ErrConfig, ch.ID)
		}
		if ch.Points < 0 {
			return fmt.Errorf("%w: challenge %q has negative points", domain.ErrConfig, ch.ID)
		}
		if ch.StartDate.IsZero() || ch.EndDate.IsZero() || !ch.EndDate.After(ch.StartDate) {
			return fmt.Errorf("%w: challenge %q needs start_date before end_date", domain.ErrConfig, ch.ID)
		}
		switch ch.Category {
		case domain.ChallengeDaily, domain.ChallengeWeekly, domain.ChallengeMonthly, domain.ChallengeSpecial:
		default:
			return fmt.Errorf("%w: challenge %q has unknown category %q", domain.ErrConfig, ch.ID, ch.Category)
		}
		switch ch.Difficulty {
		case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
		default:
			return fmt.Errorf("%w: challenge %q has unknown difficulty %q", domain.ErrConfig, ch.ID, ch.Difficulty)
		}
		if ch.Metric != "" && !validMetric(ch.Metric) {
			return fmt.Errorf("%w: challenge %q has unknown metric %q", domain.ErrConfig, ch.ID, ch.Metric)
		}
	}

	return nil
}

func validRarity(r domain.Rarity) bool {
	switch r {
	case domain.RarityCommon, domain.RarityUncommon, domain.RarityRare, domain.RarityEpic, domain.RarityLegendary:
		return true
	}
	return false
}

func validMetric(m domain.Metric) bool {
	switch m {
	case domain.MetricHabitsCompleted, domain.MetricDistinctHabits, domain.MetricTotalPoints,
		domain.MetricCurrentStreak, domain.MetricBestStreak, domain.MetricCheckIns,
		domain.MetricChallengesCompleted, domain.MetricLevel:
		return true
	}
	return false
}
