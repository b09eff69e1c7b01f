package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	UndoReverted  = "[UNDO] Reverted to previous code version."
	UndoNothing   = "[UNDO] No previous code version to revert to."
	NoCodeHistory = "[No code history found]"
)

// CodeHistory is the append-only list of code snapshots, newest last.
// Undo is the only operation that removes an entry.
type CodeHistory struct {
	versions []string
}

func (h *CodeHistory) Push(code string) {
	h.versions = append(h.versions, code)
}

func (h *CodeHistory) Len() int {
	return len(h.versions)
}

// Current returns the newest snapshot.
func (h *CodeHistory) Current() (string, bool) {
	if len(h.versions) == 0 {
		return "", false
	}
	return h.versions[len(h.versions)-1], true
}

// Undo drops the newest snapshot and returns the new tail. The last remaining
// version is never removed.
func (h *CodeHistory) Undo() (string, bool) {
	if len(h.versions) <= 1 {
		return "", false
	}
	h.versions = h.versions[:len(h.versions)-1]
	return h.versions[len(h.versions)-1], true
}

func (h *CodeHistory) Versions() []string {
	ret := make([]string, len(h.versions))
	copy(ret, h.versions)
	return ret
}

func (h *CodeHistory) Render() string {
	if len(h.versions) == 0 {
		return NoCodeHistory
	}
	parts := make([]string, 0, len(h.versions))
	for i, v := range h.versions {
		parts = append(parts, fmt.Sprintf("--- Version %d ---\n%s", i+1, v))
	}
	return strings.Join(parts, "\n\n")
}

func (h CodeHistory) MarshalJSON() ([]byte, error) {
	if h.versions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.versions)
}

func (h *CodeHistory) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &h.versions)
}
