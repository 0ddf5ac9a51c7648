package conversation

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns a BLAKE3-256 hex fingerprint over the roles and contents of msgs.
// Order matters; metadata is not part of the fingerprint.
func Digest(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	h := blake3.New()
	for _, m := range msgs {
		_, _ = h.Write([]byte(m.Role))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(m.Content))
		_, _ = h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CountRoles tallies messages per role.
func CountRoles(msgs []Message) map[Role]int {
	counts := make(map[Role]int)
	for _, m := range msgs {
		counts[m.Role]++
	}
	return counts
}
