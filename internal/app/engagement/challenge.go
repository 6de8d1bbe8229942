package engagement

import (
	"fmt"
	"time"

	"github.com/tutu-network/rewards/internal/domain"
)

// ChallengeRegistry drives time-boxed challenges through
// scheduled → active → {completed | expired}.
// Completion is idempotent and pays the challenge points exactly once.
// Challenges with a metric advance on their own from progression events,
// counting only activity inside the challenge window.
type ChallengeRegistry struct {
	definitions []domain.ChallengeDef
	byID        map[string]int
}

// NewChallengeRegistry indexes validated definitions.
func NewChallengeRegistry(defs []domain.ChallengeDef) *ChallengeRegistry {
	r := &ChallengeRegistry{
		definitions: defs,
		byID:        make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		r.byID[d.ID] = i
	}
	return r
}

// Lookup returns the definition for id.
func (r *ChallengeRegistry) Lookup(id string) (domain.ChallengeDef, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.ChallengeDef{}, false
	}
	return r.definitions[i], true
}

// Status reports where a challenge is in its lifecycle for one user.
// st may be nil for a user who never touched the challenge.
func Status(def domain.ChallengeDef, st *domain.ChallengeState, now time.Time) domain.ChallengeStatus {
	switch {
	case st != nil && st.Completed:
		return domain.ChallengeCompleted
	case now.Before(def.StartDate):
		return domain.ChallengeScheduled
	case now.After(def.EndDate):
		return domain.ChallengeExpired
	}
	return domain.ChallengeActive
}

// Start enrolls the user. It fails with ErrNotActive outside the window
// and ErrAlreadyStarted when the challenge was started, has progress or
// is completed.
func (r *ChallengeRegistry) Start(u *unit, id string) (*domain.ChallengeState, error) {
	def, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !def.IsActive(u.now) {
		return nil, fmt.Errorf("challenge %q runs %s to %s: %w", id,
			def.StartDate.Format(time.RFC3339), def.EndDate.Format(time.RFC3339), domain.ErrNotActive)
	}
	if st := u.progress.Challenge(id); st != nil && (st.Started || st.Progress > 0 || st.Completed) {
		return nil, fmt.Errorf("challenge %q: %w", id, domain.ErrAlreadyStarted)
	}

	st := r.state(u.progress, def)
	st.Started = true
	st.StartedAt = u.now
	u.log(domain.ActivityChallengeStarted, fmt.Sprintf("Started challenge: %s", def.Title), 0,
		map[string]string{"challenge": def.ID})

	// Metric-bound challenges count activity already inside the window.
	if def.Metric != "" {
		if err := r.advance(u, def); err != nil {
			return nil, err
		}
	}
	return u.progress.Challenge(id), nil
}

// UpdateProgress sets absolute progress. A completed challenge returns its
// state unchanged. Otherwise it fails with ErrExpired after the window,
// ErrNotActive before it and ErrInvalidOperation when value would move
// progress backwards. Values above the maximum are clamped, and reaching
// the maximum completes the challenge.
func (r *ChallengeRegistry) UpdateProgress(u *unit, id string, value int) (*domain.ChallengeState, error) {
	def, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if st := u.progress.Challenge(id); st != nil && st.Completed {
		return st, nil
	}
	if err := checkWindow(def, u.now); err != nil {
		return nil, err
	}

	cur := 0
	if st := u.progress.Challenge(id); st != nil {
		cur = st.Progress
	}
	if value < cur {
		return nil, fmt.Errorf("%w: challenge %q progress cannot decrease from %d to %d",
			domain.ErrInvalidOperation, id, cur, value)
	}
	if value > def.MaxProgress {
		value = def.MaxProgress
	}

	st := r.state(u.progress, def)
	if !st.Started {
		st.Started = true
		st.StartedAt = u.now
		u.touch()
	}
	if value != st.Progress {
		st.Progress = value
		u.touch()
	}
	if st.Progress >= st.MaxProgress {
		if err := r.complete(u, def, st); err != nil {
			return nil, err
		}
	}
	return u.progress.Challenge(id), nil
}

// Complete finishes a challenge explicitly. Completing twice is a no-op.
func (r *ChallengeRegistry) Complete(u *unit, id string) (*domain.ChallengeState, error) {
	def, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if st := u.progress.Challenge(id); st != nil && st.Completed {
		return st, nil
	}
	if err := checkWindow(def, u.now); err != nil {
		return nil, err
	}

	st := r.state(u.progress, def)
	if !st.Started {
		st.Started = true
		st.StartedAt = u.now
	}
	if err := r.complete(u, def, st); err != nil {
		return nil, err
	}
	return u.progress.Challenge(id), nil
}

// Advance moves every started metric-bound challenge that ev can affect.
func (r *ChallengeRegistry) Advance(u *unit, ev Event) error {
	for _, def := range r.definitions {
		if def.Metric == "" || !ev.Kind.Triggers(def.Metric) {
			continue
		}
		if err := r.advance(u, def); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChallengeRegistry) advance(u *unit, def domain.ChallengeDef) error {
	st := u.progress.Challenge(def.ID)
	if st == nil || !st.Started || st.Completed || !def.IsActive(u.now) {
		return nil
	}
	value := u.metricValue(def.Metric, &window{from: def.StartDate, to: def.EndDate})
	if value > st.MaxProgress {
		value = st.MaxProgress
	}
	if value > st.Progress {
		st.Progress = value
		u.touch()
	}
	if st.Progress < st.MaxProgress {
		return nil
	}
	return r.complete(u, def, st)
}

// complete marks st completed and pays the challenge points.
func (r *ChallengeRegistry) complete(u *unit, def domain.ChallengeDef, st *domain.ChallengeState) error {
	st.Completed = true
	st.CompletedAt = u.now
	st.Progress = st.MaxProgress

	err := u.award(def.Points, domain.TxEarned, domain.SourceChallenge, domain.ActivityChallengeCompleted,
		fmt.Sprintf("Completed challenge: %s", def.Title),
		map[string]string{"challenge": def.ID})
	if err != nil {
		return fmt.Errorf("award challenge %s: %w", def.ID, err)
	}
	u.effects.ChallengesCompleted = append(u.effects.ChallengesCompleted, def.ID)
	u.push(Event{Kind: EventChallengeCompleted})
	return nil
}

func (r *ChallengeRegistry) lookup(id string) (domain.ChallengeDef, error) {
	def, ok := r.Lookup(id)
	if !ok {
		return def, fmt.Errorf("challenge %q: %w", id, domain.ErrNotFound)
	}
	return def, nil
}

func (r *ChallengeRegistry) state(p *domain.UserProgress, def domain.ChallengeDef) *domain.ChallengeState {
	if st := p.Challenge(def.ID); st != nil {
		return st
	}
	p.Challenges = append(p.Challenges, domain.ChallengeState{
		ID:          def.ID,
		MaxProgress: def.MaxProgress,
	})
	return &p.Challenges[len(p.Challenges)-1]
}

func checkWindow(def domain.ChallengeDef, now time.Time) error {
	if now.After(def.EndDate) {
		return fmt.Errorf("challenge %q ended %s: %w", def.ID, def.EndDate.Format(time.RFC3339), domain.ErrExpired)
	}
	if now.Before(def.StartDate) {
		return fmt.Errorf("challenge %q starts %s: %w", def.ID, def.StartDate.Format(time.RFC3339), domain.ErrNotActive)
	}
	return nil
}

// View merges definitions with the user's states in catalog order.
// Participants and leaderboards are filled in by the engine.
func (r *ChallengeRegistry) View(p *domain.UserProgress, now time.Time) []domain.Challenge {
	out := make([]domain.Challenge, 0, len(r.definitions))
	for _, def := range r.definitions {
		st := p.Challenge(def.ID)
		c := domain.Challenge{ChallengeDef: def, Status: Status(def, st, now)}
		if st != nil {
			c.Progress = st.Progress
			c.Started = st.Started
			c.Completed = st.Completed
			c.CompletedAt = st.CompletedAt
		}
		out = append(out, c)
	}
	return out
}
