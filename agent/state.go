package agent

import (
	"encoding/json"
	"fmt"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
)

// DefaultMaxEpisodes caps episode memory for states built with New.
const DefaultMaxEpisodes = 1000

// AgentState is the composite experience of one agent as seen by one
// instance: skills, episodes, and the vector clock that stamps every
// local mutation. It is the unit two instances exchange and merge.
type AgentState struct {
	agentID  string
	node     clock.NodeID
	skills   SkillAccumulator
	episodes EpisodeMemory
	clock    clock.VectorClock
	lastSync int64
}

// New creates state for agentID owned by the given local instance.
func New(agentID string, node clock.NodeID) AgentState {
	return AgentState{
		agentID:  agentID,
		node:     node,
		skills:   NewSkillAccumulator(),
		episodes: NewEpisodeMemory(DefaultMaxEpisodes),
		clock:    clock.NewVectorClock(),
	}
}

// Empty returns the merge identity for agentID: merging it into any state
// with the same agent ID yields that state back unchanged.
func Empty(agentID string, node clock.NodeID) AgentState {
	return AgentState{
		agentID:  agentID,
		node:     node,
		skills:   NewSkillAccumulator(),
		episodes: NewEpisodeMemory(0),
		clock:    clock.NewVectorClock(),
	}
}

// AgentID returns the agent this state belongs to.
func (s AgentState) AgentID() string {
	return s.agentID
}

// Node returns the local instance that owns this copy.
func (s AgentState) Node() clock.NodeID {
	return s.node
}

// Skills returns the skill accumulator.
func (s AgentState) Skills() SkillAccumulator {
	return s.skills
}

// Episodes returns the episode memory.
func (s AgentState) Episodes() EpisodeMemory {
	return s.episodes
}

// Clock returns a copy of the vector clock.
func (s AgentState) Clock() clock.VectorClock {
	return s.clock.Clone()
}

// LastSync returns the wall-clock time of the most recent merge.
func (s AgentState) LastSync() int64 {
	return s.lastSync
}

// Tick advances only the local instance's vector-clock coordinate.
func (s AgentState) Tick() AgentState {
	s.clock = s.clock.Tick(s.node)
	return s
}

// UpdateSkill records a local practice session and causally stamps it.
func (s AgentState) UpdateSkill(name string, proficiency float64, timestamp int64) AgentState {
	s.skills = s.skills.UpdateSkill(name, proficiency, timestamp, s.node)
	return s.Tick()
}

// AddEpisode records a local episode and causally stamps it.
func (s AgentState) AddEpisode(episode Episode) AgentState {
	s.episodes = s.episodes.Add(episode)
	return s.Tick()
}

// Merge reconciles this state with another instance's copy of the same
// agent. Merging states for different agents is a programming error and
// panics. The result carries the later of the two sync times.
func (s AgentState) Merge(other AgentState) AgentState {
	if s.agentID != other.agentID {
		panic(fmt.Sprintf("agent: merge of mismatched agents %q and %q", s.agentID, other.agentID))
	}
	s.skills = s.skills.Merge(other.skills)
	s.episodes = s.episodes.Merge(other.episodes)
	s.clock = s.clock.Merge(other.clock)
	s.lastSync = max(s.lastSync, other.lastSync)
	return s
}

// MarkSynced stamps the state with the wall-clock time a sync completed.
func (s AgentState) MarkSynced(wallClock int64) AgentState {
	if wallClock > s.lastSync {
		s.lastSync = wallClock
	}
	return s
}

// HasDiverged reports whether the two copies hold concurrent histories -
// a merge would reconcile a split rather than fast-forward one side.
func (s AgentState) HasDiverged(other AgentState) bool {
	return s.clock.Concurrent(other.clock)
}

type agentStateWire struct {
	AgentID  string            `json:"agentId"`
	Node     clock.NodeID      `json:"node"`
	Skills   SkillAccumulator  `json:"skills"`
	Episodes EpisodeMemory     `json:"episodes"`
	Clock    clock.VectorClock `json:"vectorClock"`
	LastSync int64             `json:"lastSync"`
}

// MarshalJSON implements json.Marshaler.
func (s AgentState) MarshalJSON() ([]byte, error) {
	return json.Marshal(agentStateWire{
		AgentID:  s.agentID,
		Node:     s.node,
		Skills:   s.skills,
		Episodes: s.episodes,
		Clock:    s.clock,
		LastSync: s.lastSync,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *AgentState) UnmarshalJSON(data []byte) error {
	var wire agentStateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Clock == nil {
		wire.Clock = clock.NewVectorClock()
	}
	s.agentID = wire.AgentID
	s.node = wire.Node
	s.skills = wire.Skills
	s.episodes = wire.Episodes
	s.clock = wire.Clock
	s.lastSync = wire.LastSync
	return nil
}
