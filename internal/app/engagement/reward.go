package engagement

import (
	"fmt"
	"strconv"

	"github.com/tutu-network/rewards/internal/domain"
)

// grantLevelRewards issues the rewards attached to lvl. A reward id is
// granted at most once per user, so dropping below a level and climbing
// back does not duplicate it.
func grantLevelRewards(u *unit, lvl domain.Level) {
	for _, def := range lvl.Rewards {
		if u.progress.Reward(def.ID) != nil {
			continue
		}
		r := domain.RewardState{
			ID:          def.ID,
			Title:       def.Title,
			Description: def.Description,
			Type:        def.Type,
			Value:       def.Value,
			Level:       lvl.Level,
			GrantedAt:   u.now,
		}
		if def.ExpiresDays > 0 {
			r.ExpiresAt = u.now.AddDate(0, 0, def.ExpiresDays)
		}
		u.progress.Rewards = append(u.progress.Rewards, r)
		u.log(domain.ActivityRewardGranted, fmt.Sprintf("Reward unlocked: %s", def.Title), 0,
			map[string]string{"reward": def.ID, "level": strconv.Itoa(lvl.Level)})
		u.effects.RewardsGranted = append(u.effects.RewardsGranted, def.ID)
	}
}

// claimReward marks a granted reward claimed. Claiming is idempotent:
// an already claimed or expired reward is returned unchanged with no
// error. A points reward pays its value once, as a reward bonus.
func claimReward(u *unit, id string) (domain.RewardState, error) {
	r := u.progress.Reward(id)
	if r == nil {
		return domain.RewardState{}, fmt.Errorf("reward %q: %w", id, domain.ErrNotFound)
	}
	if r.Claimed || r.IsExpired(u.now) {
		return *r, nil
	}

	r.Claimed = true
	r.ClaimedAt = u.now
	claimed := *r
	u.touch()

	meta := map[string]string{"reward": claimed.ID}
	desc := fmt.Sprintf("Claimed reward: %s", claimed.Title)
	if claimed.Type == domain.RewardPoints && claimed.Value > 0 {
		if err := u.award(claimed.Value, domain.TxBonus, domain.SourceReward, domain.ActivityRewardClaimed, desc, meta); err != nil {
			return domain.RewardState{}, fmt.Errorf("award reward %s: %w", claimed.ID, err)
		}
		return claimed, nil
	}
	u.log(domain.ActivityRewardClaimed, desc, 0, meta)
	return claimed, nil
}
