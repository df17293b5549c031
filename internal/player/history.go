package player

// HistoryLimit is the number of recently played tracks kept for navigation.
const HistoryLimit = 5

// History is a bounded list of recently played tracks with a cursor at the
// entry currently playing. The cursor is -1 only while the list is empty.
type History struct {
	entries []Track
	cursor  int
}

func NewHistory() *History {
	return &History{cursor: -1}
}

// Record moves the cursor to t, appending it if it is not already present
// and evicting the oldest entries past HistoryLimit.
func (h *History) Record(t Track) {
	for i, e := range h.entries {
		if e.Seq == t.Seq {
			h.cursor = i
			return
		}
	}
	h.entries = append(h.entries, t)
	if over := len(h.entries) - HistoryLimit; over > 0 {
		h.entries = append([]Track(nil), h.entries[over:]...)
	}
	h.cursor = len(h.entries) - 1
}

// StepBack moves the cursor one entry back and returns that track. It
// returns false, leaving the history untouched, when the cursor is already
// at the earliest entry; callers treat that as "restart the current track".
func (h *History) StepBack() (Track, bool) {
	if h.cursor <= 0 {
		return Track{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// StepForward moves the cursor one entry forward if the cursor is behind
// the most recent entry.
func (h *History) StepForward() (Track, bool) {
	if h.cursor < 0 || h.cursor >= len(h.entries)-1 {
		return Track{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []Track {
	out := make([]Track, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int    { return len(h.entries) }
func (h *History) Cursor() int { return h.cursor }
