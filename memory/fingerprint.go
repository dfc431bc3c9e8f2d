package memory

import (
	"crypto/sha512"
	"encoding/hex"
	"sort"
	"strings"
)

// FingerprintAlgorithm names the hash used for entry fingerprints.
const FingerprintAlgorithm = "sha384"

// Fingerprint is the content-addressed identity of a memory entry.
//
// It is computed in two stages: a hash of the raw content, a hash of the
// entry type plus its canonicalized metadata, and a combined hash over
// both digests. The combined hash is the entry ID. Fingerprints depend
// only on content and type metadata, never on timestamps or the creating
// node, so the same observation fingerprints identically everywhere.
type Fingerprint struct {
	Hash         string `json:"hash"`
	ContentHash  string `json:"contentHash"`
	MetadataHash string `json:"metadataHash"`
	Algorithm    string `json:"algorithm"`
}

// ComputeFingerprint derives the fingerprint for an entry with the given
// content, entry type and type metadata. Metadata keys are sorted before
// hashing so the result is independent of map iteration order.
func ComputeFingerprint(content, entryType string, metadata map[string]string) Fingerprint {
	contentSum := sha512.Sum384([]byte(content))

	var meta strings.Builder
	meta.WriteString(entryType)
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		meta.WriteByte(0x1f)
		meta.WriteString(k)
		meta.WriteByte('=')
		meta.WriteString(metadata[k])
	}
	metaSum := sha512.Sum384([]byte(meta.String()))

	combined := sha512.New384()
	combined.Write(contentSum[:])
	combined.Write(metaSum[:])

	return Fingerprint{
		Hash:         hex.EncodeToString(combined.Sum(nil)),
		ContentHash:  hex.EncodeToString(contentSum[:]),
		MetadataHash: hex.EncodeToString(metaSum[:]),
		Algorithm:    FingerprintAlgorithm,
	}
}

// Equal reports whether two fingerprints identify the same entry.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Hash == other.Hash
}
