package agent

import (
	"encoding/json"
	"slices"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/crdt"
)

// Skill tracks one named capability: how good the agent has gotten at it,
// how often it was exercised, and when it was last used. Usage is counted
// per instance so that merging two accounts of the same history never
// double-counts, while merging genuinely independent practice sums.
type Skill struct {
	Proficiency float64       `json:"proficiency"` // in [0,1]
	Usage       crdt.GCounter `json:"usage"`
	LastUsed    int64         `json:"lastUsed"`
}

// UsageCount returns total practice sessions across all instances.
func (s Skill) UsageCount() uint64 {
	return s.Usage.Value()
}

// SkillAccumulator maps skill names to monotonically improving skills.
// Proficiency never regresses: updates and merges both take the maximum.
type SkillAccumulator struct {
	skills map[string]Skill
}

// NewSkillAccumulator returns an empty accumulator.
func NewSkillAccumulator() SkillAccumulator {
	return SkillAccumulator{skills: map[string]Skill{}}
}

// UpdateSkill records a practice session by node at the given timestamp.
// If the stored entry is older, proficiency rises to the maximum of old
// and new and the node's usage count increments. An update older than the
// stored entry is dropped, not reordered - out-of-order practice reports
// never rewind a skill.
func (a SkillAccumulator) UpdateSkill(name string, proficiency float64, timestamp int64, node clock.NodeID) SkillAccumulator {
	existing, ok := a.skills[name]
	if ok && existing.LastUsed > timestamp {
		return a
	}

	next := a.clone()
	if !ok {
		next.skills[name] = Skill{
			Proficiency: proficiency,
			Usage:       crdt.NewGCounter().Increment(node),
			LastUsed:    timestamp,
		}
		return next
	}
	next.skills[name] = Skill{
		Proficiency: max(existing.Proficiency, proficiency),
		Usage:       existing.Usage.Increment(node),
		LastUsed:    timestamp,
	}
	return next
}

// Skill returns the entry for name and whether it exists.
func (a SkillAccumulator) Skill(name string) (Skill, bool) {
	s, ok := a.skills[name]
	return s, ok
}

// Proficiency returns the proficiency for name, zero if unknown.
func (a SkillAccumulator) Proficiency(name string) float64 {
	return a.skills[name].Proficiency
}

// UsageCount returns the total practice sessions recorded for name.
func (a SkillAccumulator) UsageCount(name string) uint64 {
	return a.skills[name].Usage.Value()
}

// Names returns all known skill names, sorted.
func (a SkillAccumulator) Names() []string {
	out := make([]string, 0, len(a.skills))
	for name := range a.skills {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of tracked skills.
func (a SkillAccumulator) Len() int {
	return len(a.skills)
}

// Merge combines two accumulators per skill: maximum proficiency, merged
// usage counters, latest use time. Disjoint instances' counts sum; shared
// history counts once.
func (a SkillAccumulator) Merge(other SkillAccumulator) SkillAccumulator {
	merged := a.clone()
	for name, theirs := range other.skills {
		ours, ok := merged.skills[name]
		if !ok {
			merged.skills[name] = theirs
			continue
		}
		merged.skills[name] = Skill{
			Proficiency: max(ours.Proficiency, theirs.Proficiency),
			Usage:       ours.Usage.Merge(theirs.Usage),
			LastUsed:    max(ours.LastUsed, theirs.LastUsed),
		}
	}
	return merged
}

func (a SkillAccumulator) clone() SkillAccumulator {
	skills := make(map[string]Skill, len(a.skills))
	for name, s := range a.skills {
		skills[name] = s
	}
	return SkillAccumulator{skills: skills}
}

// MarshalJSON implements json.Marshaler.
func (a SkillAccumulator) MarshalJSON() ([]byte, error) {
	if a.skills == nil {
		return json.Marshal(map[string]Skill{})
	}
	return json.Marshal(a.skills)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *SkillAccumulator) UnmarshalJSON(data []byte) error {
	var skills map[string]Skill
	if err := json.Unmarshal(data, &skills); err != nil {
		return err
	}
	if skills == nil {
		skills = map[string]Skill{}
	}
	a.skills = skills
	return nil
}
