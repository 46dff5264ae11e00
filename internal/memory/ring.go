// Package memory implements the Memory Ring (spec.md C3): a per-identity
// bounded FIFO of conversational turns, tier-capped, producing the
// character-capped context windows the orchestrator injects into prompts.
package memory

import (
	"strings"
	"time"

	"github.com/agentkernel/gateway/internal/identity"
	"github.com/agentkernel/gateway/internal/tier"
)

// contextWindowEntries and spliceEntries are the numbers of most-recent
// entries context_window and the prompt-splice step consider (spec.md §4.3 "last 10 entries", §4.6
// step 5 "last six memory entries"). Kept distinct since the two call
// sites want different windows.
const (
	contextWindowEntries = 10
	spliceEntries        = 6
)

// DefaultMaxChars is the context_window character cap (spec.md §4.3).
const DefaultMaxChars = 2000

// Append pushes {role, truncate(content, 500), now} to the tail of
// id.Memory and evicts from the head while the tier capacity is exceeded
// (spec.md §4.3). Mutates id in place; callers persist afterward.
func Append(id *identity.Identity, role, content string) {
	entry := identity.MemoryEntry{
		Role:      role,
		Content:   truncate(content, identity.MaxEntryChars),
		Timestamp: time.Now().UnixMilli(),
	}
	id.Memory = append(id.Memory, entry)

	capacity := tier.MemoryCapacity(id.Tier)
	if capacity == tier.Unbounded {
		return
	}
	if over := len(id.Memory) - capacity; over > 0 {
		id.Memory = id.Memory[over:]
	}
}

// ContextWindow concatenates the last contextWindowEntries entries (or
// fewer) as "[role]: content\n" lines, in order, then takes the last
// maxChars characters of that concatenation (spec.md §4.3). The
// tail-truncation is by character count, not by whole lines.
func ContextWindow(id *identity.Identity, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	entries := Recent(id, contextWindowEntries)

	var b strings.Builder
	for _, e := range entries {
		b.WriteByte('[')
		b.WriteString(e.Role)
		b.WriteString("]: ")
		b.WriteString(e.Content)
		b.WriteByte('\n')
	}
	full := b.String()
	if len(full) <= maxChars {
		return full
	}
	return full[len(full)-maxChars:]
}

// SpliceEntries returns the last six memory entries, oldest-first, for
// insertion between the system and final user message (spec.md §4.6 step 5).
func SpliceEntries(id *identity.Identity) []identity.MemoryEntry {
	return Recent(id, spliceEntries)
}

// Recent returns the last n entries in order, oldest-first.
func Recent(id *identity.Identity, n int) []identity.MemoryEntry {
	if n <= 0 || len(id.Memory) == 0 {
		return nil
	}
	if n > len(id.Memory) {
		n = len(id.Memory)
	}
	start := len(id.Memory) - n
	out := make([]identity.MemoryEntry, n)
	copy(out, id.Memory[start:])
	return out
}

// truncate caps content at n characters (bytes of the UTF-8 encoding are
// treated as the unit here, matching spec.md's "500 characters" wording
// and the teacher's ASCII-oriented prompt text).
func truncate(content string, n int) string {
	if len(content) <= n {
		return content
	}
	return content[:n]
}
