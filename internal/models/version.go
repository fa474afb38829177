package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// QueueVersion derives the opaque version token for a committed queue
// state from its eligible entries in position order.
//
// The token is a content hash rather than a max-updated-at timestamp so
// that two mutations landing in the same clock tick still produce
// distinct tokens. It changes under every reorder-relevant mutation:
// position changes, membership changes, and flag or singer edits.
func QueueVersion(entries []*QueueEntry) string {
	if len(entries) == 0 {
		return hashLines([]string{"empty"})
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s|%d|%s|%t|%t|%t|%d",
			e.ID, e.Position, e.Singer, e.VIP, e.OnBreak, e.Mature,
			e.UpdatedAt.UTC().UnixNano())
	}
	return hashLines(lines)
}

// ProposedVersion derives the token representing a plan's proposed
// end-state from its ordered position assignments.
func ProposedVersion(order []Assignment) string {
	if len(order) == 0 {
		return hashLines([]string{"empty"})
	}

	lines := make([]string, len(order))
	for i, a := range order {
		lines[i] = fmt.Sprintf("%s|%d", a.QueueID, a.Position)
	}
	return hashLines(lines)
}

func hashLines(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:16])
}
