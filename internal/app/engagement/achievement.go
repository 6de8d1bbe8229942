package engagement

import (
	"fmt"

	"github.com/tutu-network/rewards/internal/domain"
)

// AchievementRegistry evaluates the catalog's achievements against a
// user's aggregate. Threshold achievements unlock from events; manual ones
// only through Unlock. Unlocking is monotonic and happens once per user.
type AchievementRegistry struct {
	definitions []domain.AchievementDef
	byID        map[string]int
}

// NewAchievementRegistry indexes validated definitions.
func NewAchievementRegistry(defs []domain.AchievementDef) *AchievementRegistry {
	r := &AchievementRegistry{
		definitions: defs,
		byID:        make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		r.byID[d.ID] = i
	}
	return r
}

// Lookup returns the definition for id.
func (r *AchievementRegistry) Lookup(id string) (domain.AchievementDef, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.AchievementDef{}, false
	}
	return r.definitions[i], true
}

// TotalCount returns the number of defined achievements.
func (r *AchievementRegistry) TotalCount() int {
	return len(r.definitions)
}

// Evaluate re-checks every threshold achievement whose metric ev can move
// and returns the ids unlocked by this call. Already unlocked achievements
// are skipped.
func (r *AchievementRegistry) Evaluate(u *unit, ev Event) ([]string, error) {
	var unlocked []string
	for _, def := range r.definitions {
		if def.Rule.Kind != domain.RuleThreshold || !ev.Kind.Triggers(def.Rule.Metric) {
			continue
		}
		st := r.state(u.progress, def)
		if st.Unlocked {
			continue
		}

		value := u.metricValue(def.Rule.Metric, nil)
		if value > st.MaxProgress {
			value = st.MaxProgress
		}
		// Progress never moves backwards, even when a metric such as
		// total_points drops after a spend.
		if value > st.Progress {
			st.Progress = value
			u.touch()
		}
		if st.Progress < st.MaxProgress {
			continue
		}
		if err := r.unlock(u, def, st); err != nil {
			return unlocked, err
		}
		unlocked = append(unlocked, def.ID)
	}
	return unlocked, nil
}

// Unlock completes a manual achievement. Unknown ids return ErrNotFound,
// threshold achievements ErrInvalidOperation. Unlocking twice is a no-op.
func (r *AchievementRegistry) Unlock(u *unit, id string) (bool, error) {
	def, ok := r.Lookup(id)
	if !ok {
		return false, fmt.Errorf("achievement %q: %w", id, domain.ErrNotFound)
	}
	if def.Rule.Kind != domain.RuleManual {
		return false, fmt.Errorf("%w: achievement %q unlocks from its %s metric", domain.ErrInvalidOperation, id, def.Rule.Metric)
	}
	st := r.state(u.progress, def)
	if st.Unlocked {
		return false, nil
	}
	if err := r.unlock(u, def, st); err != nil {
		return false, err
	}
	return true, nil
}

// unlock marks st unlocked and pays the achievement bonus. The ledger
// entry is written even for a zero-point achievement so every unlocked
// achievement has exactly one achievement entry.
func (r *AchievementRegistry) unlock(u *unit, def domain.AchievementDef, st *domain.AchievementState) error {
	st.Unlocked = true
	st.UnlockedAt = u.now
	st.Progress = st.MaxProgress

	err := u.award(def.Points, domain.TxBonus, domain.SourceAchievement, domain.ActivityAchievement,
		fmt.Sprintf("Achievement unlocked: %s", def.Title),
		map[string]string{"achievement": def.ID, "rarity": string(def.Rarity)})
	if err != nil {
		return fmt.Errorf("award achievement %s: %w", def.ID, err)
	}
	u.effects.AchievementsUnlocked = append(u.effects.AchievementsUnlocked, def.ID)
	return nil
}

// state returns the user's state for def, creating it on first use.
func (r *AchievementRegistry) state(p *domain.UserProgress, def domain.AchievementDef) *domain.AchievementState {
	if st := p.Achievement(def.ID); st != nil {
		return st
	}
	p.Achievements = append(p.Achievements, domain.AchievementState{
		ID:          def.ID,
		MaxProgress: def.Goal(),
	})
	return &p.Achievements[len(p.Achievements)-1]
}

// View merges definitions with the user's states, in catalog order.
// Achievements the user has never touched show zero progress.
func (r *AchievementRegistry) View(p *domain.UserProgress) []domain.Achievement {
	out := make([]domain.Achievement, 0, len(r.definitions))
	for _, def := range r.definitions {
		a := domain.Achievement{AchievementDef: def, MaxProgress: def.Goal()}
		if st := p.Achievement(def.ID); st != nil {
			a.Progress = st.Progress
			a.Unlocked = st.Unlocked
			a.UnlockedAt = st.UnlockedAt
		}
		out = append(out, a)
	}
	return out
}
