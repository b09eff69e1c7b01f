package session

import (
	"sync"
	"time"
)

// EntryType tags a history entry with what kind of output it carries.
type EntryType string

const (
	EntryPlan            EntryType = "plan"
	EntryResearch        EntryType = "research"
	EntryResearchDetails EntryType = "research_details"
	EntryCode            EntryType = "code"
	EntryFormat          EntryType = "format"
	EntryAnswer          EntryType = "answer"
	EntryRunCode         EntryType = "run_code"
	EntryReport          EntryType = "report"
	EntryExport          EntryType = "export"
	EntryPatch           EntryType = "patch"
	EntryReview          EntryType = "review"
	EntryReasoning       EntryType = "reasoning"
	EntryControl         EntryType = "control"
	EntryStorage         EntryType = "storage"
	EntryError           EntryType = "error"
	EntryAction          EntryType = "action"
)

type Entry struct {
	Agent  string    `json:"agent"`
	Type   EntryType `json:"type"`
	Output string    `json:"output"`
	// Plan is a snapshot of the plan on EntryPlan entries.
	Plan   *Plan     `json:"plan,omitempty"`
	At     time.Time `json:"at"`
}

// History is the ordered audit trail of a turn. Entries are only ever appended.
type History struct {
	mu       sync.Mutex
	entries  []Entry
	watchers []func(Entry)
}

func NewHistory() *History {
	return &History{}
}

// OnAppend registers a callback invoked synchronously for every new entry.
func (h *History) OnAppend(f func(Entry)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers = append(h.watchers, f)
}

func (h *History) Append(agent string, typ EntryType, output string) Entry {
	return h.AppendEntry(Entry{
		Agent:  agent,
		Type:   typ,
		Output: output,
	})
}

// AppendEntry appends e, stamping it with the current time.
func (h *History) AppendEntry(e Entry) Entry {
	e.At = time.Now()
	h.mu.Lock()
	h.entries = append(h.entries, e)
	watchers := h.watchers
	h.mu.Unlock()

	for _, w := range watchers {
		w(e)
	}
	return e
}

func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	ret := make([]Entry, len(h.entries))
	copy(ret, h.entries)
	return ret
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
