package gossip

import (
	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/memory"
)

// DeltaEntries selects the entries a peer with the given vector clock
// has not seen: those stamped strictly after it. A peer that passes an
// empty clock gets everything.
func DeltaEntries(entries []memory.Entry, since clock.VectorClock) []memory.Entry {
	if len(since) == 0 {
		out := make([]memory.Entry, len(entries))
		copy(out, entries)
		return out
	}
	var out []memory.Entry
	for _, entry := range entries {
		if since.Compare(entry.LogicalTime.Vector) == clock.Before {
			out = append(out, entry)
		}
	}
	return out
}
