// Package gossip defines the wire envelope and delta selection for
// spreading agent state between instances. The package is transport
// agnostic: it encodes and decodes envelopes and decides what to send,
// while the caller supplies the actual channel through the Transport
// interface.
package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivemindlabs/hivemind-go-sdk/agent"
	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/memory"
)

// Envelope is one gossip message. It carries either a full agent state
// snapshot, a batch of memory entries, or both, together with the
// sender's vector clock so the receiver can tell what it is missing.
type Envelope struct {
	AgentID string            `json:"agentId"`
	Origin  clock.NodeID      `json:"origin"`
	Clock   clock.VectorClock `json:"vectorClock"`
	State   *agent.AgentState `json:"state,omitempty"`
	Entries []memory.Entry    `json:"entries,omitempty"`
	Round   int               `json:"round"`
	SentAt  int64             `json:"sentAt"`
}

// NewStateEnvelope wraps a full agent state snapshot.
func NewStateEnvelope(state agent.AgentState, round int) Envelope {
	return Envelope{
		AgentID: state.AgentID(),
		Origin:  state.Node(),
		Clock:   state.Clock(),
		State:   &state,
		Round:   round,
		SentAt:  time.Now().UnixMilli(),
	}
}

// NewEntryEnvelope wraps a batch of memory entries.
func NewEntryEnvelope(agentID string, origin clock.NodeID, clk clock.VectorClock, entries []memory.Entry, round int) Envelope {
	return Envelope{
		AgentID: agentID,
		Origin:  origin,
		Clock:   clk,
		Entries: entries,
		Round:   round,
		SentAt:  time.Now().UnixMilli(),
	}
}

// Encode serializes the envelope to JSON.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("gossip: encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope from JSON.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("gossip: decode envelope: %w", err)
	}
	if e.AgentID == "" {
		return Envelope{}, fmt.Errorf("gossip: envelope missing agent ID")
	}
	return e, nil
}

// Transport delivers envelopes to peers. Implementations handle
// connection management and framing; the core never opens sockets
// itself.
type Transport interface {
	Send(ctx context.Context, peer string, env Envelope) error
}
