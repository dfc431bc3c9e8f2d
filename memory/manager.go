package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/crdt"
)

// Config tunes a Manager's memory behavior.
type Config struct {
	// WorkingTTL is how long a working-tier entry stays readable.
	WorkingTTL time.Duration

	// SummaryLength caps the auto-generated summary attached on
	// promotion to the episodic tier, in runes.
	SummaryLength int

	// InitialConfidence is assigned to a fact on first promotion to
	// the semantic tier.
	InitialConfidence float64

	// ConfidenceStep is added to a semantic fact's confidence each
	// time the same fact is observed again, capped at 1.0.
	ConfidenceStep float64

	// SimilarityThreshold is recorded on semantic entries for
	// downstream convergence layers.
	SimilarityThreshold float64

	// RequiredVotes is the vote count a validation record needs before
	// its threshold flag can be set.
	RequiredVotes int

	// Fanout is the gossip fanout recorded on promoted entries.
	Fanout int

	// CacheEntries sizes the working-tier read cache.
	CacheEntries int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkingTTL:          30 * time.Minute,
		SummaryLength:       100,
		InitialConfidence:   0.5,
		ConfidenceStep:      0.1,
		SimilarityThreshold: 0.85,
		RequiredVotes:       1,
		Fanout:              3,
		CacheEntries:        10_000,
	}
}

// Manager owns one instance's memory entries and logical clock.
//
// All state lives in process memory. Entries are addressed by
// fingerprint, so recording the same observation twice yields one entry,
// and merging a remote instance's entries is entry-wise and idempotent.
// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	node     clock.NodeID
	clk      *clock.State
	config   *Config
	entries  map[string]Entry
	semantic map[string]string
	cache    *ristretto.Cache
	embedder Embedder
	index    Index
}

// Option configures a Manager.
type Option func(*Manager)

// WithEmbedder sets the embedder used for recall and indexing.
func WithEmbedder(e Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

// WithIndex sets the similarity index populated on promotion.
func WithIndex(idx Index) Option {
	return func(m *Manager) { m.index = idx }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg *Config) Option {
	return func(m *Manager) {
		if cfg != nil {
			m.config = cfg
		}
	}
}

// NewManager creates a memory manager for the given node.
func NewManager(node clock.NodeID, opts ...Option) (*Manager, error) {
	if node == "" {
		return nil, fmt.Errorf("memory: node ID is required")
	}
	m := &Manager{
		node:     node,
		clk:      clock.NewState(node),
		config:   DefaultConfig(),
		entries:  make(map[string]Entry),
		semantic: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: m.config.CacheEntries * 10,
		MaxCost:     m.config.CacheEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: create working cache: %w", err)
	}
	m.cache = cache
	return m, nil
}

// Node returns the node ID this manager stamps entries with.
func (m *Manager) Node() clock.NodeID {
	return m.node
}

// Vector returns a copy of the manager's current vector clock.
func (m *Manager) Vector() clock.VectorClock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clk.Vector()
}

// Record stores a new working-tier entry for the given content.
//
// The entry ID is the content fingerprint, so recording identical
// content with the same type and metadata returns the existing entry
// with its access count bumped instead of creating a duplicate. Parent
// IDs become causal links in both directions.
func (m *Manager) Record(content, entryType string, metadata map[string]string, importance float64, parents ...string) (Entry, error) {
	if strings.TrimSpace(content) == "" {
		return Entry{}, fmt.Errorf("memory: content is empty")
	}
	fp := ComputeFingerprint(content, entryType, metadata)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[fp.Hash]; ok {
		touched := existing.Touch(m.node)
		m.entries[fp.Hash] = touched
		if touched.Tier == TierWorking {
			m.cache.SetWithTTL(fp.Hash, touched, 1, m.config.WorkingTTL)
		}
		return touched, nil
	}

	lt := m.clk.Tick()
	entry := Entry{
		ID:          fp.Hash,
		Fingerprint: fp,
		Content:     content,
		Type:        entryType,
		Tier:        TierWorking,
		Importance:  importance,
		LogicalTime: lt,
		UpdatedAt:   lt.WallClock,
		ExpiresAt:   lt.WallClock + m.config.WorkingTTL.Milliseconds(),
		Causality:   NewCausality(parents...),
		Tags:        crdt.NewORSet[string](),
		Access:      crdt.NewGCounter(),
	}
	for _, pid := range parents {
		if parent, ok := m.entries[pid]; ok {
			parent.Causality.Children = parent.Causality.Children.Add(entry.ID)
			m.entries[pid] = parent
			m.cache.Del(pid)
		}
	}
	m.entries[entry.ID] = entry
	m.cache.SetWithTTL(entry.ID, entry, 1, m.config.WorkingTTL)
	log.Printf("[MEMORY] recorded %s entry %s", entryType, shortID(entry.ID))
	return entry, nil
}

// Get returns the entry with the given ID. Expired working-tier entries
// are reported absent and dropped. A successful read bumps the entry's
// access count.
func (m *Manager) Get(id string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *Manager) get(id string) (Entry, bool) {
	entry, ok := m.entries[id]
	if !ok {
		return Entry{}, false
	}
	now := time.Now().UnixMilli()
	if entry.Expired(now) {
		delete(m.entries, id)
		m.cache.Del(id)
		return Entry{}, false
	}
	// The cached copy can lag writes made since it was set, so it merges
	// into the canonical entry instead of replacing it. Merging is a
	// no-op when the cache is current.
	if cached, hit := m.cache.Get(id); hit {
		if ce, isEntry := cached.(Entry); isEntry {
			entry = entry.Merge(ce)
		}
	}
	touched := entry.Touch(m.node)
	m.entries[id] = touched
	if touched.Tier == TierWorking {
		m.cache.SetWithTTL(id, touched, 1, m.config.WorkingTTL)
	}
	return touched, true
}

// Promote moves an entry to the given tier.
//
// Working entries promote to episodic, gaining a summary and the
// replication, gossip and validation metadata that travels with shared
// entries. Episodic entries promote to semantic or procedural. When a
// semantic candidate's content matches an existing semantic fact
// case-insensitively, the existing fact is reinforced instead of
// duplicated and is returned in the candidate's place.
//
// If an embedder and index are configured, promotion out of working
// memory also embeds and indexes the entry. A failure there is returned
// to the caller but the promotion itself stands; Reindex retries the
// indexing step.
func (m *Manager) Promote(ctx context.Context, id string, target Tier) (Entry, error) {
	if !target.Valid() {
		return Entry{}, fmt.Errorf("memory: unknown tier %q", target)
	}

	m.mu.Lock()
	entry, reinforced, err := m.promoteLocked(id, target)
	m.mu.Unlock()
	if err != nil || reinforced {
		return entry, err
	}

	// Embedding and index I/O run after the tier change commits and
	// without the lock, so a slow model or store does not stall reads
	// and writes on other entries.
	err = m.embedAndIndex(ctx, &entry)
	m.saveEmbedding(entry)
	return entry, err
}

func (m *Manager) promoteLocked(id string, target Tier) (Entry, bool, error) {
	entry, ok := m.get(id)
	if !ok {
		return Entry{}, false, fmt.Errorf("memory: entry %s not found", shortID(id))
	}
	if !entry.Tier.CanPromoteTo(target) {
		return Entry{}, false, fmt.Errorf("memory: cannot promote %s entry to %s", entry.Tier, target)
	}

	if target == TierSemantic {
		canonical := canonicalFact(entry.Content)
		if existingID, ok := m.semantic[canonical]; ok && existingID != id {
			existing := m.entries[existingID]
			conv := Convergence{CanonicalForm: existing.Content}
			if existing.Convergence != nil {
				conv = *existing.Convergence
			}
			conv = conv.Reinforce(id, m.config.ConfidenceStep)
			existing.Convergence = &conv
			existing.Causality.Related = existing.Causality.Related.Add(id)
			lt := m.clk.Tick()
			existing.LogicalTime = existing.LogicalTime.Merge(lt)
			existing.UpdatedAt = lt.WallClock
			m.entries[existingID] = existing
			log.Printf("[MEMORY] fact %s reinforced by %s (verifications=%d confidence=%.2f)",
				shortID(existingID), shortID(id), conv.VerificationCount, conv.Confidence)
			return existing, true, nil
		}
	}

	lt := m.clk.Tick()
	entry.LogicalTime = entry.LogicalTime.Merge(lt)
	entry.UpdatedAt = lt.WallClock
	from := entry.Tier
	entry.Tier = target
	entry.ExpiresAt = 0

	switch target {
	case TierEpisodic:
		entry.Summary = summarize(entry.Content, m.config.SummaryLength)
		crdtMeta := NewCRDTMeta(m.node, lt.WallClock)
		gossipMeta := NewGossipMeta(m.node, m.config.Fanout)
		validation := NewValidation(m.node, m.config.RequiredVotes)
		entry.CRDT = &crdtMeta
		entry.Gossip = &gossipMeta
		entry.Validation = &validation
	case TierSemantic:
		conv := NewConvergence(entry.Content, id, m.config.InitialConfidence, m.config.SimilarityThreshold)
		entry.Convergence = &conv
		m.semantic[canonicalFact(entry.Content)] = id
	}

	m.entries[id] = entry
	m.cache.Del(id)
	log.Printf("[MEMORY] promoted entry %s from %s to %s", shortID(id), from, target)
	return entry, false, nil
}

// Reindex re-embeds and re-indexes an already promoted entry, for
// recovering from an indexing failure during Promote.
func (m *Manager) Reindex(ctx context.Context, id string) error {
	m.mu.Lock()
	entry, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("memory: entry %s not found", shortID(id))
	}
	err := m.embedAndIndex(ctx, &entry)
	m.saveEmbedding(entry)
	return err
}

func (m *Manager) embedAndIndex(ctx context.Context, entry *Entry) error {
	if m.embedder == nil || m.index == nil {
		return nil
	}
	if len(entry.Embedding) == 0 {
		embedding, err := m.embedder.Embed(ctx, entry.Content)
		if err != nil {
			return fmt.Errorf("memory: embed entry %s: %w", shortID(entry.ID), err)
		}
		entry.Embedding = embedding
	}
	if err := m.index.Store(ctx, *entry); err != nil {
		return fmt.Errorf("memory: index entry %s: %w", shortID(entry.ID), err)
	}
	return nil
}

// saveEmbedding stores a freshly computed embedding on the canonical
// entry so a later Reindex skips the embed step.
func (m *Manager) saveEmbedding(entry Entry) {
	if len(entry.Embedding) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[entry.ID]; ok && len(cur.Embedding) == 0 {
		cur.Embedding = entry.Embedding
		m.entries[entry.ID] = cur
	}
}

// Validate records a verification vote on a promoted entry.
func (m *Manager) Validate(id string, voter clock.NodeID, confidence float64) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("memory: entry %s not found", shortID(id))
	}
	if entry.Validation == nil {
		return Entry{}, fmt.Errorf("memory: entry %s has no validation record", shortID(id))
	}
	v := entry.Validation.AddVote(voter, confidence)
	entry.Validation = &v
	m.entries[id] = entry
	m.cache.Del(id)
	return entry, nil
}

// Tag adds a tag to an entry.
func (m *Manager) Tag(id, tag string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("memory: entry %s not found", shortID(id))
	}
	entry.Tags = entry.Tags.Add(tag)
	m.entries[id] = entry
	m.cache.Del(id)
	return entry, nil
}

// MergeRemote folds another instance's entries into this one.
//
// Entries merge by ID, so applying the same batch twice is a no-op.
// Each remote entry's logical time is observed, advancing this
// instance's clock past everything it has seen. Entries whose ID does
// not match their fingerprint are rejected. Returns the number of
// entries that were new or changed.
func (m *Manager) MergeRemote(remote []Entry) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := 0
	now := time.Now().UnixMilli()
	for _, r := range remote {
		if r.ID == "" || r.ID != r.Fingerprint.Hash {
			log.Printf("[MEMORY] rejected entry with mismatched fingerprint %s", shortID(r.ID))
			continue
		}
		if r.Expired(now) {
			continue
		}
		m.clk.Observe(r.LogicalTime)
		local, ok := m.entries[r.ID]
		if !ok {
			m.entries[r.ID] = r
			if r.Tier == TierSemantic {
				m.semantic[canonicalFact(r.Content)] = r.ID
			}
			changed++
			continue
		}
		merged := local.Merge(r)
		if !entriesEqual(merged, local) {
			changed++
		}
		m.entries[r.ID] = merged
		m.cache.Del(r.ID)
		if merged.Tier == TierSemantic {
			m.semantic[canonicalFact(merged.Content)] = merged.ID
		}
	}
	if changed > 0 {
		log.Printf("[MEMORY] merged %d remote entries (%d changed)", len(remote), changed)
	}
	return changed
}

// Recall returns the entries most similar to the query, best match
// first. It requires a configured embedder and index.
func (m *Manager) Recall(ctx context.Context, query string, limit int) ([]Entry, error) {
	if m.embedder == nil || m.index == nil {
		return nil, fmt.Errorf("memory: recall requires an embedder and an index")
	}
	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	results, err := m.index.Query(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: query index: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry, 0, len(results))
	for _, res := range results {
		if entry, ok := m.get(res.ID); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Entries returns a snapshot of all live entries, ordered by ID.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UnixMilli()
	out := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		if !entry.Expired(now) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UnixMilli()
	n := 0
	for _, entry := range m.entries {
		if !entry.Expired(now) {
			n++
		}
	}
	return n
}

// Close releases the working cache and the index, if any.
func (m *Manager) Close() error {
	m.cache.Close()
	if m.index != nil {
		return m.index.Close()
	}
	return nil
}

// entriesEqual compares two entries by their canonical serialized form,
// which sorts every set and counter, so metadata-only differences such
// as a new tag or vote still register.
func entriesEqual(a, b Entry) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(da, db)
}

// canonicalFact normalizes fact content for semantic convergence.
// Matching is case-insensitive on trimmed content.
func canonicalFact(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}

// summarize truncates content to at most n runes for the episodic
// summary field.
func summarize(content string, n int) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
