package textproc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"resumatch/internal/types"
)

// Fingerprint derives the stable content identity of normalized text. It must
// only be applied to normalized text, never raw bytes, so cosmetic
// re-extraction differences do not produce spurious cache misses.
func Fingerprint(text string) types.Fingerprint {
	sum := sha256.Sum256([]byte(text))
	return types.Fingerprint(hex.EncodeToString(sum[:]))
}

// FingerprintJob derives the identity of a job requirement from its canonical
// JSON encoding, so structurally identical requirements share a cache key
// regardless of how they were supplied.
func FingerprintJob(job *types.JobRequirement) types.Fingerprint {
	clone := *job
	clone.DescriptionHash = ""
	data, err := json.Marshal(&clone)
	if err != nil {
		// Marshal of the plain struct cannot fail; fall back to the
		// description text to keep the key total.
		return Fingerprint(job.Description)
	}
	return Fingerprint(string(data))
}
