package agent

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Episode is one lived experience: what happened, in what context, and
// how it turned out. Episodes are immutable once created; two episodes
// with the same ID are the same episode anywhere in the system.
type Episode struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Context    map[string]string `json:"context,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	Importance float64           `json:"importance"` // in [0,1]
	Tags       []string          `json:"tags,omitempty"`
}

// NewEpisode creates an episode with a fresh unique ID.
func NewEpisode(content string, importance float64, timestamp int64) Episode {
	return Episode{
		ID:         uuid.NewString(),
		Content:    content,
		Timestamp:  timestamp,
		Importance: importance,
	}
}

// EpisodeMemory is a bounded episode log. When the cap is exceeded the
// lowest-importance episodes are silently dropped - no tombstones, the
// agent simply forgets what mattered least. A cap of zero or below means
// unbounded, which is what the merge identity uses.
type EpisodeMemory struct {
	episodes    map[string]Episode
	maxEpisodes int
}

// NewEpisodeMemory returns an empty log capped at maxEpisodes.
func NewEpisodeMemory(maxEpisodes int) EpisodeMemory {
	return EpisodeMemory{episodes: map[string]Episode{}, maxEpisodes: maxEpisodes}
}

// Add returns the log with episode inserted. Adding an episode whose ID
// is already present is a no-op. If the cap is exceeded the log re-ranks
// by importance and truncates deterministically.
func (m EpisodeMemory) Add(episode Episode) EpisodeMemory {
	if _, ok := m.episodes[episode.ID]; ok {
		return m
	}
	next := m.clone()
	next.episodes[episode.ID] = episode
	next.truncate()
	return next
}

// Get returns the episode with the given ID, if retained.
func (m EpisodeMemory) Get(id string) (Episode, bool) {
	e, ok := m.episodes[id]
	return e, ok
}

// Episodes returns the retained episodes, most important first. Ties
// break by ID so the order is stable across instances.
func (m EpisodeMemory) Episodes() []Episode {
	out := make([]Episode, 0, len(m.episodes))
	for _, e := range m.episodes {
		out = append(out, e)
	}
	slices.SortFunc(out, compareEpisodes)
	return out
}

// Len returns the number of retained episodes.
func (m EpisodeMemory) Len() int {
	return len(m.episodes)
}

// Cap returns the configured maximum.
func (m EpisodeMemory) Cap() int {
	return m.maxEpisodes
}

// Merge unions both logs by episode ID and applies the truncation rule
// under the larger of the two caps. Duplicated IDs are the same immutable
// episode, so either copy serves.
func (m EpisodeMemory) Merge(other EpisodeMemory) EpisodeMemory {
	merged := m.clone()
	for id, e := range other.episodes {
		if _, ok := merged.episodes[id]; !ok {
			merged.episodes[id] = e
		}
	}
	merged.maxEpisodes = mergeCaps(m.maxEpisodes, other.maxEpisodes)
	merged.truncate()
	return merged
}

// mergeCaps picks the larger cap. A non-positive cap is unset (unbounded
// locally) and defers to the other side, so merging with an empty
// freshly-initialized log never alters the configured cap.
func mergeCaps(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	return max(a, b)
}

// truncate drops the lowest-importance episodes over the cap, in place.
// Only called on freshly cloned receivers.
func (m *EpisodeMemory) truncate() {
	if m.maxEpisodes <= 0 || len(m.episodes) <= m.maxEpisodes {
		return
	}
	ranked := m.Episodes()
	for _, e := range ranked[m.maxEpisodes:] {
		delete(m.episodes, e.ID)
	}
}

func compareEpisodes(a, b Episode) int {
	if a.Importance != b.Importance {
		if a.Importance > b.Importance {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

func (m EpisodeMemory) clone() EpisodeMemory {
	episodes := make(map[string]Episode, len(m.episodes))
	for id, e := range m.episodes {
		episodes[id] = e
	}
	return EpisodeMemory{episodes: episodes, maxEpisodes: m.maxEpisodes}
}

type episodeMemoryWire struct {
	Episodes    []Episode `json:"episodes"`
	MaxEpisodes int       `json:"maxEpisodes"`
}

// MarshalJSON implements json.Marshaler. Episodes serialize ranked so
// equal logs are byte-identical.
func (m EpisodeMemory) MarshalJSON() ([]byte, error) {
	return json.Marshal(episodeMemoryWire{
		Episodes:    m.Episodes(),
		MaxEpisodes: m.maxEpisodes,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *EpisodeMemory) UnmarshalJSON(data []byte) error {
	var wire episodeMemoryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	restored := NewEpisodeMemory(wire.MaxEpisodes)
	for _, e := range wire.Episodes {
		restored.episodes[e.ID] = e
	}
	restored.truncate()
	*m = restored
	return nil
}
