package routing

import "fmt"

// CommandTable maps control-channel note numbers to section indices in
// registration order: the i-th note selects section i.
type CommandTable struct {
	notes []uint8
}

// NewCommandTable builds a table from notes, truncated to the number of
// loaded sections.
func NewCommandTable(notes []int, sections int) (*CommandTable, error) {
	if sections < len(notes) {
		notes = notes[:max(sections, 0)]
	}
	t := &CommandTable{notes: make([]uint8, 0, len(notes))}
	seen := make(map[int]struct{}, len(notes))
	for _, n := range notes {
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateCommand, n)
		}
		seen[n] = struct{}{}
		t.notes = append(t.notes, uint8(n))
	}
	return t, nil
}

// Lookup returns the section index selected by note.
func (t *CommandTable) Lookup(note uint8) (int, bool) {
	for i, n := range t.notes {
		if n == note {
			return i, true
		}
	}
	return 0, false
}

// Len returns the number of registered commands.
func (t *CommandTable) Len() int { return len(t.notes) }

// Notes returns a copy of the registered notes in order.
func (t *CommandTable) Notes() []uint8 {
	return append([]uint8(nil), t.notes...)
}
