package models

// Tier represents a capability level for step execution.
// Tiers form an ordered ladder from cheapest to most capable.
type Tier string

const (
	// TierReflex is the cheapest tier for deterministic or trivial work.
	TierReflex Tier = "reflex"
	// TierLight is a small, fast tier for simple reasoning.
	TierLight Tier = "light"
	// TierStandard is the default tier for general work.
	TierStandard Tier = "standard"
	// TierHeavy is the most capable and most expensive tier.
	TierHeavy Tier = "heavy"
)

// Ladder returns all tiers ordered from cheapest to most capable.
func Ladder() []Tier {
	return []Tier{TierReflex, TierLight, TierStandard, TierHeavy}
}

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierReflex, TierLight, TierStandard, TierHeavy:
		return true
	default:
		return false
	}
}

// Rank returns the tier's position on the ladder, starting at 0 for
// the cheapest tier. Unknown tiers rank -1.
func (t Tier) Rank() int {
	for i, tier := range Ladder() {
		if t == tier {
			return i
		}
	}
	return -1
}

// Next returns the next tier up the ladder. The top tier returns
// itself: escalation clamps at the ceiling rather than wrapping.
func (t Tier) Next() Tier {
	r := t.Rank()
	if r < 0 {
		return t
	}
	ladder := Ladder()
	if r >= len(ladder)-1 {
		return ladder[len(ladder)-1]
	}
	return ladder[r+1]
}

// AtCeiling returns true if no higher tier exists.
func (t Tier) AtCeiling() bool {
	return t.Valid() && t.Next() == t
}

// TierForRank returns the tier at the given ladder position, clamped
// to the ends of the ladder.
func TierForRank(rank int) Tier {
	ladder := Ladder()
	if rank < 0 {
		return ladder[0]
	}
	if rank >= len(ladder) {
		return ladder[len(ladder)-1]
	}
	return ladder[rank]
}
