package memory

// Tier identifies which stage of the memory lifecycle an entry is in.
type Tier string

const (
	// TierWorking holds fresh, unconsolidated entries with a TTL.
	TierWorking Tier = "working"
	// TierEpisodic holds summarized experience promoted out of working memory.
	TierEpisodic Tier = "episodic"
	// TierSemantic holds converged facts distilled from episodes.
	TierSemantic Tier = "semantic"
	// TierProcedural holds learned procedures distilled from episodes.
	TierProcedural Tier = "procedural"
)

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierWorking, TierEpisodic, TierSemantic, TierProcedural:
		return true
	}
	return false
}

// CanPromoteTo reports whether an entry in tier t may move to next.
// Promotion is one-directional: working feeds episodic, and episodic
// feeds semantic or procedural. Nothing ever moves back down.
func (t Tier) CanPromoteTo(next Tier) bool {
	switch t {
	case TierWorking:
		return next == TierEpisodic
	case TierEpisodic:
		return next == TierSemantic || next == TierProcedural
	}
	return false
}
